package modem

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/logx"
)

// scriptedPort replays a canned modem transcript: every written command is
// recorded and the queued response bytes are returned chunk by chunk.
type scriptedPort struct {
	written   []string
	responses [][]byte
}

func (p *scriptedPort) queue(s string) {
	p.responses = append(p.responses, []byte(s))
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.written = append(p.written, strings.TrimRight(string(b), "\r\n"))
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if len(p.responses) == 0 {
		// Nothing scripted; behave like a serial read timeout.
		return 0, nil
	}
	chunk := p.responses[0]
	p.responses = p.responses[1:]
	return copy(b, chunk), nil
}

func (p *scriptedPort) Close() error                         { return nil }
func (p *scriptedPort) SetReadTimeout(d time.Duration) error { return nil }

func newTestChannel(port *scriptedPort) *Channel {
	return New(port, nil, 200*time.Millisecond, logx.NewLogger("error", "test"))
}

func TestCommand_OK(t *testing.T) {
	port := &scriptedPort{}
	port.queue("AT+CSQ\r\n")                // echo
	port.queue("+CSQ: 22,99\r\n\r\nOK\r\n") // payload, blank, final

	ch := newTestChannel(port)
	lines, err := ch.Command(context.Background(), "AT+CSQ")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "+CSQ: 22,99" {
		t.Errorf("lines = %v, want [+CSQ: 22,99]", lines)
	}
	if len(port.written) != 1 || port.written[0] != "AT+CSQ" {
		t.Errorf("written = %v, want [AT+CSQ]", port.written)
	}
}

func TestCommand_SplitAcrossReads(t *testing.T) {
	port := &scriptedPort{}
	// The response arrives in arbitrary chunks, not on line boundaries.
	port.queue("+CGAT")
	port.queue("T: 1\r\nO")
	port.queue("K\r\n")

	ch := newTestChannel(port)
	lines, err := ch.Command(context.Background(), "AT+CGATT?")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "+CGATT: 1" {
		t.Errorf("lines = %v, want [+CGATT: 1]", lines)
	}
}

func TestCommand_Error(t *testing.T) {
	port := &scriptedPort{}
	port.queue("ERROR\r\n")

	ch := newTestChannel(port)
	if _, err := ch.Command(context.Background(), "AT+BOGUS"); err == nil {
		t.Fatal("Command succeeded on ERROR response")
	}
}

func TestCommand_CMEError(t *testing.T) {
	port := &scriptedPort{}
	port.queue("+CME ERROR: SIM not inserted\r\n")

	ch := newTestChannel(port)
	_, err := ch.Command(context.Background(), "AT+CPIN?")
	if err == nil || !strings.Contains(err.Error(), "SIM not inserted") {
		t.Errorf("error = %v, want CME detail", err)
	}
}

func TestCommand_Timeout(t *testing.T) {
	ch := newTestChannel(&scriptedPort{}) // silent modem

	start := time.Now()
	_, err := ch.Command(context.Background(), "AT")
	if err == nil {
		t.Fatal("Command succeeded with no response")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, want ~200ms", elapsed)
	}
}

func TestCommand_DiscardsStaleBuffer(t *testing.T) {
	port := &scriptedPort{}
	// A partial line with no terminator leaves the first command hanging
	// until its timeout.
	port.queue("+CGPSINF")

	ch := newTestChannel(port)
	ctx := context.Background()
	if _, err := ch.Command(ctx, "AT+CGPSINFO"); err == nil {
		t.Fatal("first command succeeded without a terminated response")
	}

	// The late fragment must not bleed into the next command's response.
	port.queue("OK\r\n")
	lines, err := ch.Command(ctx, "AT")
	if err != nil {
		t.Fatalf("command after timeout failed: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("lines = %v, want none", lines)
	}
}

func TestCommandExpect(t *testing.T) {
	port := &scriptedPort{}
	port.queue("+CSQ: 22,99\r\nOK\r\n")

	ch := newTestChannel(port)
	line, err := ch.CommandExpect(context.Background(), "AT+CSQ", "+CSQ:")
	if err != nil {
		t.Fatalf("CommandExpect failed: %v", err)
	}
	if line != "+CSQ: 22,99" {
		t.Errorf("line = %q", line)
	}

	port.queue("OK\r\n")
	if _, err := ch.CommandExpect(context.Background(), "AT+CSQ", "+CSQ:"); err == nil {
		t.Error("CommandExpect succeeded without the expected prefix")
	}
}

func TestWaitFor(t *testing.T) {
	port := &scriptedPort{}
	port.queue("\r\n+HTTPACTION: 1,200,52\r\n")

	ch := newTestChannel(port)
	line, err := ch.WaitFor(context.Background(), "+HTTPACTION:", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitFor failed: %v", err)
	}
	if line != "+HTTPACTION: 1,200,52" {
		t.Errorf("line = %q", line)
	}
}

func TestWaitFor_ContextCancelled(t *testing.T) {
	ch := newTestChannel(&scriptedPort{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ch.WaitFor(ctx, "+HTTPACTION:", time.Second); err == nil {
		t.Error("WaitFor succeeded on cancelled context")
	}
}

func TestPowerCycle_NoPin(t *testing.T) {
	ch := newTestChannel(&scriptedPort{})
	if err := ch.PowerCycle(); err == nil {
		t.Error("PowerCycle succeeded without a configured pin")
	}
}
