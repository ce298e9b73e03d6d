package gps

import (
	"bytes"
	"context"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/hardware"
	"github.com/markus-lassfolk/trackerd/pkg/logx"
)

const nmeaReadSlice = 200 * time.Millisecond

// Neo6MSource reads NMEA sentences from the external NEO-6M module over
// its own UART.
type Neo6MSource struct {
	port    hardware.Port
	logger  *logx.Logger
	pending []byte
}

func NewNeo6MSource(port hardware.Port, logger *logx.Logger) *Neo6MSource {
	return &Neo6MSource{port: port, logger: logger}
}

func (s *Neo6MSource) Name() string { return "neo6m" }

// AcquireFix consumes the NMEA stream until a valid RMC sentence (merged
// with any GGA data seen alongside it) or the context deadline.
func (s *Neo6MSource) AcquireFix(ctx context.Context) (*Fix, error) {
	data := &nmeaData{}
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return nil, err
		}
		if line == "" {
			continue
		}
		if err := data.parseSentence(line); err != nil {
			s.logger.Trace("discarding NMEA sentence", "error", err)
			continue
		}
		if fix := data.toFix(s.Name()); fix != nil {
			return fix, nil
		}
	}
}

func (s *Neo6MSource) readLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := string(bytes.TrimRight(s.pending[:i], "\r"))
			s.pending = s.pending[i+1:]
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			if err == context.DeadlineExceeded {
				return "", ErrFixTimeout
			}
			return "", err
		}

		if err := s.port.SetReadTimeout(nmeaReadSlice); err != nil {
			return "", err
		}
		buf := make([]byte, 512)
		n, err := s.port.Read(buf)
		if err != nil {
			return "", err
		}
		s.pending = append(s.pending, buf[:n]...)
	}
}
