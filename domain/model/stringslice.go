package model

import (
	"database/sql/driver"
	"encoding/json"
)

// StringSlice is a Postgres text[]-backed slice, adapted directly from the
// teacher's shared/models.StringArray (same Scan/Value shape), generalized
// under a name that doesn't collide with this package's own model types.
type StringSlice []string

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return s.scanBytes(v)
	case string:
		return s.scanBytes([]byte(v))
	default:
		*s = StringSlice{}
		return nil
	}
}

func (s *StringSlice) scanBytes(src []byte) error {
	var arr []string
	if len(src) > 0 {
		if err := json.Unmarshal(src, &arr); err != nil {
			*s = StringSlice{}
			return err
		}
	}
	*s = StringSlice(arr)
	return nil
}

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal([]string(s))
}

// Contains reports whether target is present in s.
func (s StringSlice) Contains(target string) bool {
	for _, v := range s {
		if v == target {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every element of s is present in other.
func (s StringSlice) SubsetOf(other StringSlice) bool {
	for _, v := range s {
		if !other.Contains(v) {
			return false
		}
	}
	return true
}
