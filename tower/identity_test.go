package tower

import (
	"crypto/rand"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTowerID_RoundTrip(t *testing.T) {
	for i := 0; i < 200; i++ {
		b := make([]byte, IDLength)
		_, err := rand.Read(b)
		require.NoError(t, err)

		fromBytes, err := TowerIDFromBytes(b)
		require.NoError(t, err)

		parsed, err := ParseTowerID(fromBytes.Hex())
		require.NoError(t, err)
		assert.Equal(t, fromBytes, parsed)
	}
}

func TestParseTowerID_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"too short", "abc"},
		{"seventeen chars", "1234567890abcdef0"},
		{"fifteen chars", "1234567890abcde"},
		{"non hex", "zz00zz00zz00zz00"},
		{"empty", ""},
		{"spaces", "12345678 0abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTowerID(tt.text)
			require.ErrorIs(t, err, ErrInvalidTowerID)
		})
	}
}

func TestTowerIDFromBytes_RejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 7, 9, 16} {
		_, err := TowerIDFromBytes(make([]byte, n))
		assert.ErrorIs(t, err, ErrInvalidTowerID, "length %d", n)
	}
}

func TestTowerID_CanonicalLowercase(t *testing.T) {
	id, err := ParseTowerID("1234567890ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "1234567890abcdef", id.Hex())

	lower, err := ParseTowerID("1234567890abcdef")
	require.NoError(t, err)
	assert.Equal(t, lower, id, "ids are equal by content regardless of input case")
}

func TestTowerID_BytesIsACopy(t *testing.T) {
	id, err := ParseTowerID("0102030405060708")
	require.NoError(t, err)

	b := id.Bytes()
	b[0] = 0xff
	assert.Equal(t, "0102030405060708", id.Hex())
}

func TestTowerID_MapKey(t *testing.T) {
	a, _ := TowerIDFromBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	b, _ := ParseTowerID("0102030405060708")

	m := map[TowerID]string{a: "first"}
	m[b] = "second"
	assert.Len(t, m, 1)
	assert.Equal(t, "second", m[a])
}

func TestTowerID_JSON(t *testing.T) {
	id, _ := ParseTowerID("1234567890abcdef")
	data, err := json.Marshal(Record{ID: id, Name: "Tower"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"towerId":"1234567890abcdef"`), string(data))

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, id, rec.ID)
}
