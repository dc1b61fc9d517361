package types

import (
	"encoding/hex"
	"fmt"
)

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is the genesis zero value.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText encodes the hash as lowercase hex for JSON and manifests.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a lowercase hex hash.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = ZeroHash
		return nil
	}
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("failed to decode hash: %w", err)
	}
	if len(b) != HashSize {
		return fmt.Errorf("invalid hash length %d, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return nil
}
