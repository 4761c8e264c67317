package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList stores a slice of strings inside a JSON text column.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}

	data, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return s.unmarshal(v)
	case string:
		return s.unmarshal([]byte(v))
	default:
		return fmt.Errorf("domain.StringList: unsupported type %T", value)
	}
}

func (s *StringList) unmarshal(data []byte) error {
	if len(data) == 0 {
		*s = nil
		return nil
	}

	var parsed []string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	if len(parsed) == 0 {
		parsed = nil
	}
	*s = parsed
	return nil
}
