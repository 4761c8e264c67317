package proxypool

import (
	"context"
	"fmt"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

// StaticProvider serves the same configured proxy to every attempt.
type StaticProvider struct {
	record *domain.ProxyRecord
}

func NewStaticProvider(record domain.ProxyRecord) (*StaticProvider, error) {
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("static proxy: %w", err)
	}
	if record.Protocol == "" {
		record.Protocol = domain.ProtocolHTTP
	}
	if record.Source == "" {
		record.Source = "static"
	}
	return &StaticProvider{record: &record}, nil
}

func (s *StaticProvider) NextProxy(context.Context) (*domain.ProxyRecord, error) {
	return s.record, nil
}
