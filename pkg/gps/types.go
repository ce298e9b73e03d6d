package gps

import (
	"context"
	"errors"
	"time"
)

// ErrFixTimeout is returned when no source produced a fix inside the
// configured budget. A missed sample is reported, never interpolated.
var ErrFixTimeout = errors.New("gps: fix timeout")

// ErrNoFix is returned by a source that answered but has no position yet.
var ErrNoFix = errors.New("gps: no fix")

// Fix is a single position sample. Immutable once produced.
type Fix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   float64   `json:"altitude,omitempty"`
	SpeedKmh   float64   `json:"speed_kmh,omitempty"`
	CourseDeg  float64   `json:"course_deg,omitempty"`
	Satellites int       `json:"satellites,omitempty"`
	HDOP       float64   `json:"hdop,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// Source is a single GPS provider.
type Source interface {
	Name() string
	AcquireFix(ctx context.Context) (*Fix, error)
}

// SourceHealth tracks per-source reliability for the status endpoint.
type SourceHealth struct {
	LastSuccess  time.Time `json:"last_success"`
	LastError    string    `json:"last_error,omitempty"`
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	SuccessRate  float64   `json:"success_rate"`
}

func (h *SourceHealth) recordSuccess() {
	h.LastSuccess = time.Now()
	h.SuccessCount++
	h.update()
}

func (h *SourceHealth) recordError(err error) {
	h.LastError = err.Error()
	h.ErrorCount++
	h.update()
}

func (h *SourceHealth) update() {
	total := h.SuccessCount + h.ErrorCount
	if total > 0 {
		h.SuccessRate = float64(h.SuccessCount) / float64(total)
	}
}
