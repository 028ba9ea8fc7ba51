package tower

import (
	"time"

	"github.com/user/towerbridge/sdk"
)

// Record is what the bridge knows about one tower
type Record struct {
	ID              TowerID   `json:"towerId"`
	Name            string    `json:"towerName"`
	FirmwareVersion string    `json:"firmwareVersion"`
	RSSI            int       `json:"rssi"`
	LastSeen        time.Time `json:"-"`
}

// RecordFromNative converts a native discovery entry. Fails for malformed ids.
func RecordFromNative(t sdk.Tower) (Record, error) {
	id, err := TowerIDFromBytes(t.TowerID)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:              id,
		Name:            t.TowerName,
		FirmwareVersion: t.FirmwareVersion,
		RSSI:            t.RSSI,
		LastSeen:        time.Now(),
	}, nil
}

// Native converts the record back to the shape the native SDK connects with
func (r Record) Native() sdk.Tower {
	return sdk.Tower{
		TowerID:         r.ID.Bytes(),
		TowerName:       r.Name,
		FirmwareVersion: r.FirmwareVersion,
		RSSI:            r.RSSI,
	}
}

// Map returns the event-channel shape of the record
func (r Record) Map() map[string]interface{} {
	return map[string]interface{}{
		"towerId":         r.ID.Hex(),
		"towerName":       r.Name,
		"firmwareVersion": r.FirmwareVersion,
		"rssi":            r.RSSI,
	}
}
