// Package telem defines the uplink record format and the device session.
package telem

import (
	"encoding/json"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/gps"
)

// Record is one uplink message: a fix (or heartbeat marker) bound to the
// device identity and a sequence number. Replayed marks records delivered
// from the offline buffer rather than live.
type Record struct {
	DeviceID  string    `json:"device_id"`
	Token     string    `json:"token"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Fix       *gps.Fix  `json:"fix,omitempty"`
	Heartbeat bool      `json:"heartbeat,omitempty"`
	Replayed  bool      `json:"replayed,omitempty"`
}

// Encode serializes the record for any bearer. One encoding covers live
// sends, heartbeats and buffer replays.
func (r *Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Decode restores a record, used when loading the spool after a restart.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
