package simulator

import (
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"

	"github.com/user/towerbridge/tower"
)

// Sign returns the authentication tag a tower with the given id accepts for data: a keyed
// BLAKE2b-256 of data. Stands in for the backend's signature in tests and demos.
func Sign(id tower.TowerID, data []byte) []byte {
	h, err := blake2b.New256(id.Bytes())
	if err != nil {
		// only possible for keys longer than 64 bytes
		panic(err)
	}
	h.Write(data)
	return h.Sum(nil)
}

func verify(id tower.TowerID, data, tag []byte) bool {
	return subtle.ConstantTimeCompare(Sign(id, data), tag) == 1
}
