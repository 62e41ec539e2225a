package state

import (
	"encoding/json"
	"fmt"
)

func encode(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// decode parses a stored blob. Missing fields default to empty.
func decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	snap.normalize()
	return snap, nil
}
