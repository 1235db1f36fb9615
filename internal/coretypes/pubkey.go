// Package coretypes holds the identity and value types shared by every
// component of the indexer: on-chain keys, transaction signatures, and
// token amounts. Chain-specific pubkeys are treated as opaque base58 text,
// per the interface the core consumes.
package coretypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLength is the expected length of a decoded base58 account key.
const PubkeyLength = 32

// Pubkey is an opaque 32-byte account key, carried everywhere as its
// base58 text form. The store column backing it is Varchar, not bytea, so
// Scan/Value operate on strings rather than raw bytes.
type Pubkey [PubkeyLength]byte

// ZeroPubkey is the empty key, distinct from any real account.
var ZeroPubkey Pubkey

// ParsePubkey decodes a base58 string into a Pubkey.
func ParsePubkey(s string) (Pubkey, error) {
	var p Pubkey
	if s == "" {
		return p, fmt.Errorf("coretypes: empty pubkey")
	}
	d, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("coretypes: decode pubkey %q: %w", s, err)
	}
	if len(d) != PubkeyLength {
		return p, fmt.Errorf("coretypes: pubkey %q decodes to %d bytes, want %d", s, len(d), PubkeyLength)
	}
	copy(p[:], d)
	return p, nil
}

// MustParsePubkey panics on invalid input; reserved for constants/tests.
func MustParsePubkey(s string) Pubkey {
	p, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsZero reports whether p is the empty key.
func (p Pubkey) IsZero() bool { return p == ZeroPubkey }

// String returns the base58 form.
func (p Pubkey) String() string {
	if p.IsZero() {
		return ""
	}
	return base58.Encode(p[:])
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = ZeroPubkey
		return nil
	}
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Pubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pubkey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}

// Scan implements sql.Scanner for the store's text column.
func (p *Pubkey) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = ZeroPubkey
		return nil
	case string:
		return p.UnmarshalText([]byte(v))
	case []byte:
		return p.UnmarshalText(v)
	default:
		return fmt.Errorf("coretypes: can't scan %T into Pubkey", src)
	}
}

// Value implements driver.Valuer.
func (p Pubkey) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return p.String(), nil
}
