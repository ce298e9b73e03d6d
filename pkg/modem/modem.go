// Package modem implements the AT command channel to the SIM7600 module.
// The channel is shared by the cellular bearer and the modem GNSS source;
// both run on the control loop goroutine, so access is not locked.
package modem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/hardware"
	"github.com/markus-lassfolk/trackerd/pkg/logx"
)

// readSlice is the per-Read ceiling; the command deadline is what bounds
// the overall wait.
const readSlice = 200 * time.Millisecond

// Channel is a command/response session over the modem UART.
type Channel struct {
	port    hardware.Port
	pin     hardware.Pin
	timeout time.Duration
	logger  *logx.Logger

	pending []byte
}

// New creates a channel over an open port. pin may be nil when the board
// does not wire the modem power key.
func New(port hardware.Port, pin hardware.Pin, timeout time.Duration, logger *logx.Logger) *Channel {
	return &Channel{
		port:    port,
		pin:     pin,
		timeout: timeout,
		logger:  logger,
	}
}

// Command writes an AT command and collects response lines until the modem
// answers OK or ERROR, or the command timeout elapses. Unsolicited empty
// lines and the echoed command are dropped.
func (c *Channel) Command(ctx context.Context, cmd string) ([]string, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// Leftovers from a command that timed out must not be attributed to
	// this one.
	c.pending = c.pending[:0]

	if _, err := c.port.Write([]byte(cmd + "\r\n")); err != nil {
		return nil, fmt.Errorf("write %q: %w", cmd, err)
	}

	var lines []string
	for {
		line, err := c.readLine(ctx, deadline)
		if err != nil {
			return lines, fmt.Errorf("%s: %w", cmd, err)
		}
		switch {
		case line == "" || line == cmd:
			continue
		case line == "OK":
			c.logger.Trace("AT command ok", "cmd", cmd, "lines", len(lines))
			return lines, nil
		case line == "ERROR" || strings.HasPrefix(line, "+CME ERROR") || strings.HasPrefix(line, "+CMS ERROR"):
			return lines, fmt.Errorf("%s: modem answered %s", cmd, line)
		default:
			lines = append(lines, line)
		}
	}
}

// CommandExpect runs a command and returns the first response line with the
// given prefix, failing if the modem never produces one.
func (c *Channel) CommandExpect(ctx context.Context, cmd, prefix string) (string, error) {
	lines, err := c.Command(ctx, cmd)
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s: no %s in response", cmd, prefix)
}

// WaitFor reads until a line with the given prefix arrives. Used for
// delayed result codes such as +HTTPACTION that land after OK.
func (c *Channel) WaitFor(ctx context.Context, prefix string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for {
		line, err := c.readLine(ctx, deadline)
		if err != nil {
			return "", fmt.Errorf("wait %s: %w", prefix, err)
		}
		if strings.HasPrefix(line, prefix) {
			return line, nil
		}
	}
}

// Send writes raw bytes, used for HTTP bodies after AT+HTTPDATA prompts.
func (c *Channel) Send(data []byte) error {
	_, err := c.port.Write(data)
	return err
}

// PowerCycle toggles the modem power key. The five second hold matches the
// SIM7600 power-off timing.
func (c *Channel) PowerCycle() error {
	if c.pin == nil {
		return fmt.Errorf("modem power pin not configured")
	}
	c.logger.Warn("power-cycling modem")
	c.pending = c.pending[:0]
	return c.pin.Cycle(5 * time.Second)
}

// readLine returns the next CR/LF terminated line, buffering partial reads
// across calls.
func (c *Channel) readLine(ctx context.Context, deadline time.Time) (string, error) {
	for {
		if i := indexNewline(c.pending); i >= 0 {
			line := strings.TrimRight(string(c.pending[:i]), "\r")
			c.pending = c.pending[i+1:]
			return strings.TrimSpace(line), nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("timeout after %s", c.timeout)
		}

		if err := c.port.SetReadTimeout(readSlice); err != nil {
			return "", err
		}
		buf := make([]byte, 256)
		n, err := c.port.Read(buf)
		if err != nil {
			return "", err
		}
		c.pending = append(c.pending, buf[:n]...)
	}
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}
