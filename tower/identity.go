package tower

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// IDLength is the binary length of a tower id
const IDLength = 8

// DefaultTowerID is the id reported by unprovisioned towers
const DefaultTowerID = "0000000000000000"

// ErrInvalidTowerID is returned for malformed tower ids
var ErrInvalidTowerID = errors.New("invalid tower id")

// TowerID is an 8-byte tower identity. It is comparable and usable as a map key.
type TowerID [IDLength]byte

// ParseTowerID parses the 16-character hexadecimal form (either case)
func ParseTowerID(text string) (TowerID, error) {
	var id TowerID
	if len(text) != IDLength*2 {
		return id, fmt.Errorf("%w: should be %d hexadecimal characters, got %d", ErrInvalidTowerID, IDLength*2, len(text))
	}
	if _, err := hex.Decode(id[:], []byte(text)); err != nil {
		return TowerID{}, fmt.Errorf("%w: %q is not hexadecimal", ErrInvalidTowerID, text)
	}
	return id, nil
}

// TowerIDFromBytes copies an 8-byte id
func TowerIDFromBytes(b []byte) (TowerID, error) {
	var id TowerID
	if len(b) != IDLength {
		return id, fmt.Errorf("%w: should be %d bytes, got %d", ErrInvalidTowerID, IDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Hex returns the canonical lowercase form
func (id TowerID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer
func (id TowerID) String() string {
	return id.Hex()
}

// Bytes returns a copy of the id bytes
func (id TowerID) Bytes() []byte {
	b := make([]byte, IDLength)
	copy(b, id[:])
	return b
}

// short returns the first 8 hex characters for log prefixes
func (id TowerID) short() string {
	return id.Hex()[:8]
}

// MarshalText encodes the id as its hex form
func (id TowerID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText parses the hex form
func (id *TowerID) UnmarshalText(text []byte) error {
	parsed, err := ParseTowerID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
