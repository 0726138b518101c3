package streamsync

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// EncodeSnapshot serializes a state snapshot to snappy-compressed JSON
// for hand-off to the surrounding sync pipeline. The encoding is purely
// in-memory; no on-disk format is defined.
func EncodeSnapshot(snapshot StateSnapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(data []byte) (StateSnapshot, error) {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return StateSnapshot{}, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snapshot StateSnapshot
	if err := json.Unmarshal(decoded, &snapshot); err != nil {
		return StateSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}
