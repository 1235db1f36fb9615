package coretypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// Signature is a transaction signature, carried as base58 text. Unlike
// Pubkey it is frequently absent (a balance row observed from the chain
// stream before the owning transaction is persisted), so the nil string
// form round-trips through NULL.
type Signature struct {
	value string
	valid bool
}

// NewSignature wraps a base58 signature string.
func NewSignature(s string) Signature {
	if s == "" {
		return Signature{}
	}
	return Signature{value: s, valid: true}
}

// Valid reports whether a signature is present.
func (s Signature) Valid() bool { return s.valid }

// String returns the base58 form, or "" if absent.
func (s Signature) String() string {
	if !s.valid {
		return ""
	}
	return s.value
}

// Equal compares two signatures, including absence.
func (s Signature) Equal(other Signature) bool {
	return s.valid == other.valid && s.value == other.value
}

func validateBase58Signature(s string) error {
	if _, err := base58.Decode(s); err != nil {
		return fmt.Errorf("coretypes: decode signature %q: %w", s, err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler; absent signatures marshal to null.
func (s Signature) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Signature) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Signature{}
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == "" {
		*s = Signature{}
		return nil
	}
	if err := validateBase58Signature(v); err != nil {
		return err
	}
	*s = Signature{value: v, valid: true}
	return nil
}

// Scan implements sql.Scanner.
func (s *Signature) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = Signature{}
		return nil
	case string:
		*s = NewSignature(v)
		return nil
	case []byte:
		*s = NewSignature(string(v))
		return nil
	default:
		return fmt.Errorf("coretypes: can't scan %T into Signature", src)
	}
}

// Value implements driver.Valuer.
func (s Signature) Value() (driver.Value, error) {
	if !s.valid {
		return nil, nil
	}
	return s.value, nil
}
