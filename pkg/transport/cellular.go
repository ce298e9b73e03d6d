package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/config"
	"github.com/markus-lassfolk/trackerd/pkg/logx"
	"github.com/markus-lassfolk/trackerd/pkg/modem"
)

// CellularBearer delivers records through the SIM7600 HTTP stack, driven
// over the shared AT channel. Every AT exchange is bounded by the
// AT-command timeout; the HTTP action itself by the HTTP timeout.
type CellularBearer struct {
	channel *modem.Channel
	logger  *logx.Logger

	apn             string
	url             string
	httpTimeout     time.Duration
	powerCycleAfter int

	attached     bool
	connectFails int
}

func NewCellularBearer(channel *modem.Channel, cfg *config.Config, logger *logx.Logger) *CellularBearer {
	return &CellularBearer{
		channel:         channel,
		logger:          logger,
		apn:             cfg.APN,
		url:             "http://" + cfg.ServerHost + telemetryPath,
		httpTimeout:     cfg.HTTPTimeout(),
		powerCycleAfter: cfg.PowerCycleAfter,
	}
}

func (b *CellularBearer) Name() string { return "cellular" }

// Connect attaches to the packet network and brings up the modem's HTTP
// stack. After the configured number of consecutive failed attempts the
// modem power key is cycled, the same recovery the GPS arbiter applies
// to a wedged receiver.
func (b *CellularBearer) Connect(ctx context.Context) error {
	if err := b.connect(ctx); err != nil {
		b.connectFailed()
		return err
	}
	b.connectFails = 0
	return nil
}

func (b *CellularBearer) connect(ctx context.Context) error {
	b.attached = false

	if _, err := b.channel.Command(ctx, "AT"); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}
	if _, err := b.channel.Command(ctx, fmt.Sprintf("AT+CGDCONT=1,\"IP\",%q", b.apn)); err != nil {
		return fmt.Errorf("set apn: %w", err)
	}
	if _, err := b.channel.Command(ctx, "AT+CGATT=1"); err != nil {
		return fmt.Errorf("network attach: %w", err)
	}

	line, err := b.channel.CommandExpect(ctx, "AT+CGATT?", "+CGATT:")
	if err != nil {
		return fmt.Errorf("query attach: %w", err)
	}
	if !strings.Contains(line, "1") {
		return fmt.Errorf("not attached to packet network")
	}

	// HTTPINIT answers ERROR when the stack is already up; terminate and
	// retry once in that case.
	if _, err := b.channel.Command(ctx, "AT+HTTPINIT"); err != nil {
		if _, termErr := b.channel.Command(ctx, "AT+HTTPTERM"); termErr == nil {
			_, err = b.channel.Command(ctx, "AT+HTTPINIT")
		}
		if err != nil {
			return fmt.Errorf("http init: %w", err)
		}
	}

	b.attached = true
	b.logger.Info("cellular bearer attached", "apn", b.apn)
	return nil
}

func (b *CellularBearer) connectFailed() {
	b.connectFails++
	if b.powerCycleAfter <= 0 || b.connectFails < b.powerCycleAfter {
		return
	}
	b.connectFails = 0
	if err := b.channel.PowerCycle(); err != nil {
		b.logger.Error("modem power cycle failed", "error", err)
	}
}

func (b *CellularBearer) Connected() bool { return b.attached }

// Send posts a record via AT+HTTPACTION and checks the reported status.
func (b *CellularBearer) Send(ctx context.Context, payload []byte) error {
	if _, err := b.channel.Command(ctx, fmt.Sprintf("AT+HTTPPARA=\"URL\",%q", b.url)); err != nil {
		b.attached = false
		return fmt.Errorf("set url: %w", err)
	}
	if _, err := b.channel.Command(ctx, "AT+HTTPPARA=\"CONTENT\",\"application/json\""); err != nil {
		b.attached = false
		return fmt.Errorf("set content type: %w", err)
	}

	if _, err := b.channel.Command(ctx, fmt.Sprintf("AT+HTTPDATA=%d,%d", len(payload), int(b.httpTimeout.Milliseconds()))); err != nil {
		// The DOWNLOAD prompt arrives without a terminating OK on some
		// firmware revisions; tolerate the command error and push the body.
		b.logger.Trace("HTTPDATA prompt without OK", "error", err)
	}
	if err := b.channel.Send(payload); err != nil {
		b.attached = false
		return fmt.Errorf("write body: %w", err)
	}

	if _, err := b.channel.Command(ctx, "AT+HTTPACTION=1"); err != nil {
		b.attached = false
		return fmt.Errorf("http action: %w", err)
	}
	line, err := b.channel.WaitFor(ctx, "+HTTPACTION:", b.httpTimeout)
	if err != nil {
		b.attached = false
		return fmt.Errorf("http result: %w", err)
	}

	status, err := parseHTTPActionStatus(line)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("server answered %d", status)
	}
	b.logger.Debug("cellular record delivered", "status", status, "size", len(payload))
	return nil
}

func (b *CellularBearer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := b.channel.Command(ctx, "AT+HTTPTERM")
	b.attached = false
	return err
}

// parseHTTPActionStatus extracts the status code from
// +HTTPACTION: <method>,<status>,<datalen>
func parseHTTPActionStatus(line string) (int, error) {
	payload := strings.TrimSpace(strings.TrimPrefix(line, "+HTTPACTION:"))
	parts := strings.Split(payload, ",")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed HTTPACTION result %q", line)
	}
	status, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("malformed HTTPACTION status %q", line)
	}
	return status, nil
}
