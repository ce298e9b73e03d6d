package transport

import (
	"context"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/markus-lassfolk/trackerd/pkg/config"
	"github.com/markus-lassfolk/trackerd/pkg/logx"
)

// MQTTBearer publishes records to the broker over the short-range
// wireless path. Reconnection is owned by the transport arbiter, so
// paho's auto-reconnect stays off.
type MQTTBearer struct {
	client MQTT.Client
	logger *logx.Logger

	topic          string
	qos            byte
	connectTimeout time.Duration
	sendTimeout    time.Duration
}

func NewMQTTBearer(cfg *config.Config, logger *logx.Logger) *MQTTBearer {
	b := &MQTTBearer{
		logger:         logger,
		topic:          fmt.Sprintf("%s/%s/telemetry", cfg.MQTTTopicPrefix, cfg.DeviceID),
		qos:            cfg.QoS(),
		connectTimeout: cfg.WiFiTimeout(),
		sendTimeout:    cfg.HTTPTimeout(),
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.DeviceID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(b.connectTimeout)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	b.client = MQTT.NewClient(opts)
	return b
}

func (b *MQTTBearer) Name() string { return "mqtt" }

func (b *MQTTBearer) Connect(ctx context.Context) error {
	token := b.client.Connect()
	if !token.WaitTimeout(b.connectTimeout) {
		return fmt.Errorf("mqtt connect: timeout after %s", b.connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.logger.Info("MQTT bearer connected", "topic", b.topic)
	return nil
}

func (b *MQTTBearer) Connected() bool {
	return b.client.IsConnectionOpen()
}

func (b *MQTTBearer) Send(ctx context.Context, payload []byte) error {
	token := b.client.Publish(b.topic, b.qos, false, payload)
	if !token.WaitTimeout(b.sendTimeout) {
		return fmt.Errorf("mqtt publish: timeout after %s", b.sendTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	b.logger.Debug("MQTT record published", "topic", b.topic, "size", len(payload))
	return nil
}

func (b *MQTTBearer) Close() error {
	if b.client.IsConnectionOpen() {
		b.client.Disconnect(250)
	}
	return nil
}
