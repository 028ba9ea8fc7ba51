package payload

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 64; n++ {
		b := make([]byte, n)
		rng.Read(b)

		decoded, err := DecodeHex(EncodeHex(b))
		require.NoError(t, err)
		if !bytes.Equal(b, decoded) {
			t.Fatalf("round trip mismatch for %x: got %x", b, decoded)
		}
	}
}

func TestDecodeHex_Malformed(t *testing.T) {
	for _, s := range []string{"abc", "zz", "0g", "a"} {
		_, err := DecodeHex(s)
		assert.ErrorIs(t, err, ErrMalformedHex, "input %q", s)
	}
}

func TestDecodeHex_AcceptsUppercase(t *testing.T) {
	b, err := DecodeHex("DEADbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)
	assert.Equal(t, "deadbeef", EncodeHex(b))
}

func TestDecodeOptionalHex(t *testing.T) {
	b, err := DecodeOptionalHex(nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	s := "0102"
	b, err = DecodeOptionalHex(&s)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	bad := "012"
	_, err = DecodeOptionalHex(&bad)
	assert.ErrorIs(t, err, ErrMalformedHex)
}
