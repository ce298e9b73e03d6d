package gps

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/logx"
	"github.com/markus-lassfolk/trackerd/pkg/modem"
)

// cgpsinfoPollInterval paces AT+CGPSINFO polls while the module searches
// for satellites.
const cgpsinfoPollInterval = 2 * time.Second

// SIM7600Source reads GNSS data from the cellular module over the shared
// AT channel.
type SIM7600Source struct {
	channel *modem.Channel
	logger  *logx.Logger
	started bool
}

func NewSIM7600Source(channel *modem.Channel, logger *logx.Logger) *SIM7600Source {
	return &SIM7600Source{channel: channel, logger: logger}
}

func (s *SIM7600Source) Name() string { return "sim7600" }

// AcquireFix polls AT+CGPSINFO until the module reports a position or the
// context deadline passes. GNSS is switched on lazily on first use.
func (s *SIM7600Source) AcquireFix(ctx context.Context) (*Fix, error) {
	if !s.started {
		if _, err := s.channel.Command(ctx, "AT+CGPS=1"); err != nil {
			// Already-on modems answer ERROR here; only give up if the
			// module also fails to report.
			s.logger.Debug("AT+CGPS=1 not accepted", "error", err)
		}
		s.started = true
	}

	for {
		line, err := s.channel.CommandExpect(ctx, "AT+CGPSINFO", "+CGPSINFO:")
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrFixTimeout
			}
			return nil, err
		}

		fix, err := parseCGPSINFO(line)
		if err == nil {
			fix.Source = s.Name()
			return fix, nil
		}
		if err != ErrNoFix {
			s.logger.Debug("unparsable CGPSINFO line", "line", line, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ErrFixTimeout
		case <-time.After(cgpsinfoPollInterval):
		}
	}
}

// parseCGPSINFO parses
// +CGPSINFO: ddmm.mmmmmm,N,dddmm.mmmmmm,E,ddmmyy,hhmmss.s,alt,speed,course
// An empty latitude field means the module has no fix yet.
func parseCGPSINFO(line string) (*Fix, error) {
	payload := strings.TrimSpace(strings.TrimPrefix(line, "+CGPSINFO:"))
	f := strings.Split(payload, ",")
	if len(f) < 9 {
		return nil, ErrNoFix
	}
	if f[0] == "" {
		return nil, ErrNoFix
	}

	lat, err := parseCoordinate(f[0], f[1])
	if err != nil {
		return nil, err
	}
	lon, err := parseCoordinate(f[2], f[3])
	if err != nil {
		return nil, err
	}

	fix := &Fix{Latitude: lat, Longitude: lon}
	if ts, err := parseDateTime(f[4], f[5]); err == nil {
		fix.Timestamp = ts
	} else {
		fix.Timestamp = time.Now().UTC()
	}
	if v, err := strconv.ParseFloat(f[6], 64); err == nil {
		fix.Altitude = v
	}
	if v, err := strconv.ParseFloat(f[7], 64); err == nil {
		fix.SpeedKmh = v * knotsToKmh
	}
	if v, err := strconv.ParseFloat(f[8], 64); err == nil {
		fix.CourseDeg = v
	}
	return fix, nil
}
