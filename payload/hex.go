// Package payload converts binary protocol fields to and from the hex text form they take
// outside the bridge.
package payload

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrMalformedHex is returned for odd-length or non-hex input
var ErrMalformedHex = errors.New("malformed hex")

// EncodeHex returns the lowercase hex form of b
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex parses even-length hex text (either case)
func DecodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedHex, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	return b, nil
}

// DecodeOptionalHex decodes a nullable field; nil stays nil
func DecodeOptionalHex(s *string) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return DecodeHex(*s)
}
