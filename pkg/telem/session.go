package telem

import (
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/gps"
)

// Session binds the stable device identity to every outbound record and
// tracks the two runtime-mutable values the loop owns: the active
// transport mode and the current sampling interval. All mutation happens
// on the control loop goroutine.
type Session struct {
	DeviceID string
	Token    string

	transportMode    string
	samplingInterval time.Duration
	seq              uint64
}

func NewSession(deviceID, token string, initialInterval time.Duration) *Session {
	return &Session{
		DeviceID:         deviceID,
		Token:            token,
		samplingInterval: initialInterval,
	}
}

// NewRecord builds a live record for a fix, assigning the next sequence
// number.
func (s *Session) NewRecord(fix *gps.Fix) *Record {
	s.seq++
	return &Record{
		DeviceID:  s.DeviceID,
		Token:     s.Token,
		Seq:       s.seq,
		Timestamp: time.Now().UTC(),
		Fix:       fix,
	}
}

// NewHeartbeat builds a liveness record with no fix payload.
func (s *Session) NewHeartbeat() *Record {
	s.seq++
	return &Record{
		DeviceID:  s.DeviceID,
		Token:     s.Token,
		Seq:       s.seq,
		Timestamp: time.Now().UTC(),
		Heartbeat: true,
	}
}

// RestoreSeq advances the counter past sequence numbers already present in
// the spool so replays stay distinguishable after a restart.
func (s *Session) RestoreSeq(maxSeen uint64) {
	if maxSeen > s.seq {
		s.seq = maxSeen
	}
}

func (s *Session) SetTransportMode(mode string) { s.transportMode = mode }
func (s *Session) TransportMode() string        { return s.transportMode }

func (s *Session) SetSamplingInterval(d time.Duration) { s.samplingInterval = d }
func (s *Session) SamplingInterval() time.Duration     { return s.samplingInterval }
