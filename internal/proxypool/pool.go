package proxypool

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

type Rotation string

const (
	RotationSequential Rotation = "sequential"
	RotationRandom     Rotation = "random"
)

func ParseRotation(raw string) (Rotation, error) {
	switch r := Rotation(strings.ToLower(strings.TrimSpace(raw))); r {
	case RotationSequential, RotationRandom:
		return r, nil
	case "":
		return RotationSequential, nil
	default:
		return "", fmt.Errorf("unknown rotation %q", raw)
	}
}

// Pool is the working set fetched from one source. Sequential consumption
// walks a cursor; random consumption swaps the pick with the last element
// and shrinks the slice, so no record is returned twice.
type Pool struct {
	source  string
	records []*domain.ProxyRecord
	cursor  int
	size    int
}

func NewPool(source string, records []*domain.ProxyRecord) *Pool {
	return &Pool{source: source, records: records, size: len(records)}
}

func (p *Pool) Source() string {
	return p.source
}

// Size is the number of records the pool was populated with.
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) Remaining() int {
	return len(p.records) - p.cursor
}

func (p *Pool) Empty() bool {
	return p.Remaining() <= 0
}

func (p *Pool) Take(rotation Rotation, rng *rand.Rand) (*domain.ProxyRecord, bool) {
	if p.Empty() {
		return nil, false
	}

	if rotation != RotationRandom {
		record := p.records[p.cursor]
		p.records[p.cursor] = nil
		p.cursor++
		return record, true
	}

	live := p.records[p.cursor:]
	var idx int
	if rng == nil {
		idx = rand.IntN(len(live))
	} else {
		idx = rng.IntN(len(live))
	}
	last := len(live) - 1
	record := live[idx]
	live[idx] = live[last]
	live[last] = nil
	p.records = p.records[:p.cursor+last]
	return record, true
}

// FilterUnused drops records whose identity is excluded or repeated within
// the batch, keeping the first occurrence.
func FilterUnused(records []*domain.ProxyRecord, exclude Excluder) []*domain.ProxyRecord {
	seen := make(map[string]struct{}, len(records))
	unused := make([]*domain.ProxyRecord, 0, len(records))

	for _, record := range records {
		if record == nil {
			continue
		}
		identity := record.Identity()
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}
		if exclude != nil && exclude.Contains(identity) {
			continue
		}
		unused = append(unused, record)
	}

	return unused
}
