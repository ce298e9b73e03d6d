package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/config"
	"github.com/markus-lassfolk/trackerd/pkg/logx"
)

const telemetryPath = "/api/v1/telemetry"

// HTTPBearer posts records to the server over the short-range wireless
// path. HTTP is connectionless; Connect probes reachability and Connected
// reports the result of the last exchange.
type HTTPBearer struct {
	client  *http.Client
	logger  *logx.Logger
	baseURL string
	token   string

	reachable bool
}

func NewHTTPBearer(cfg *config.Config, logger *logx.Logger) *HTTPBearer {
	base := cfg.PublicOrigin
	if base == "" {
		base = "http://" + cfg.ServerHost
	}
	return &HTTPBearer{
		client:  &http.Client{Timeout: cfg.HTTPTimeout()},
		logger:  logger,
		baseURL: strings.TrimRight(base, "/"),
		token:   cfg.DeviceToken,
	}
}

func (b *HTTPBearer) Name() string { return "http" }

// Connect issues a probe request. Any HTTP response means the server is
// reachable; only a transport-level error counts as unavailable.
func (b *HTTPBearer) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.baseURL+telemetryPath, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.reachable = false
		return fmt.Errorf("http probe: %w", err)
	}
	resp.Body.Close()
	b.reachable = true
	b.logger.Info("HTTP bearer reachable", "url", b.baseURL)
	return nil
}

func (b *HTTPBearer) Connected() bool { return b.reachable }

func (b *HTTPBearer) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+telemetryPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	started := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		b.reachable = false
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http post: server answered %d", resp.StatusCode)
	}
	b.reachable = true
	b.logger.Debug("HTTP record delivered", "status", resp.StatusCode, "elapsed", time.Since(started))
	return nil
}

func (b *HTTPBearer) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
