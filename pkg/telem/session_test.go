package telem

import (
	"testing"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/gps"
)

func TestSession_SequenceNumbers(t *testing.T) {
	s := NewSession("tracker-01", "secret", time.Minute)

	r1 := s.NewRecord(&gps.Fix{Latitude: 1, Longitude: 2})
	hb := s.NewHeartbeat()
	r2 := s.NewRecord(&gps.Fix{Latitude: 3, Longitude: 4})

	if r1.Seq != 1 || hb.Seq != 2 || r2.Seq != 3 {
		t.Errorf("seqs = %d, %d, %d, want 1, 2, 3", r1.Seq, hb.Seq, r2.Seq)
	}
	if !hb.Heartbeat || hb.Fix != nil {
		t.Error("heartbeat record malformed")
	}
	if r1.DeviceID != "tracker-01" || r1.Token != "secret" {
		t.Errorf("identity = %q/%q", r1.DeviceID, r1.Token)
	}
}

func TestSession_RestoreSeq(t *testing.T) {
	s := NewSession("tracker-01", "secret", time.Minute)
	s.NewHeartbeat() // seq 1

	s.RestoreSeq(40)
	if rec := s.NewHeartbeat(); rec.Seq != 41 {
		t.Errorf("seq after restore = %d, want 41", rec.Seq)
	}

	// Restoring backwards never rewinds the counter.
	s.RestoreSeq(10)
	if rec := s.NewHeartbeat(); rec.Seq != 42 {
		t.Errorf("seq after stale restore = %d, want 42", rec.Seq)
	}
}

func TestRecord_EncodeDecode(t *testing.T) {
	s := NewSession("tracker-01", "secret", time.Minute)
	fix := &gps.Fix{
		Latitude:   59.3293,
		Longitude:  18.0686,
		SpeedKmh:   42.5,
		Satellites: 8,
		Timestamp:  time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Source:     "sim7600",
	}
	rec := s.NewRecord(fix)
	rec.Replayed = true

	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got.Seq != rec.Seq || got.DeviceID != rec.DeviceID || !got.Replayed {
		t.Errorf("decoded = %+v", got)
	}
	if got.Fix == nil || got.Fix.Latitude != fix.Latitude || got.Fix.Source != "sim7600" {
		t.Errorf("decoded fix = %+v", got.Fix)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("Decode accepted corrupt payload")
	}
}
