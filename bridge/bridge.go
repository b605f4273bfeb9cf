// Package bridge feeds capture reports published by reader devices over
// MQTT into the ingestion service, so a reader can submit over either HTTP
// or a broker.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/padraicbc/tracker/auth"
	"github.com/padraicbc/tracker/ingest"
	"github.com/padraicbc/tracker/metrics"
	"github.com/padraicbc/tracker/models"
)

// Message outcomes recorded in metrics.
const (
	OutcomeAccepted      = "accepted"
	OutcomeInvalid       = "invalid_request"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeUnprocessable = "unprocessable_entity"
	OutcomeError         = "error"
)

const (
	connectTimeout   = 5 * time.Second
	subscribeTimeout = 5 * time.Second
	submitTimeout    = 10 * time.Second
)

// Submitter commits capture reports.
type Submitter interface {
	Submit(ctx context.Context, raw []byte, creds auth.Credentials) (models.CaptureView, error)
}

// Config describes the broker connection.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// Bridge subscribes to the capture topic and submits every payload.
type Bridge struct {
	cfg   Config
	sub   Submitter
	creds auth.Credentials
	log   *zap.Logger

	client mqtt.Client

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Bridge that submits with creds.
func New(cfg Config, sub Submitter, creds auth.Credentials, log *zap.Logger) *Bridge {
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	return &Bridge{
		cfg:   cfg,
		sub:   sub,
		creds: creds,
		log:   log.With(zap.String("component", "bridge"), zap.String("topic", cfg.Topic)),
	}
}

// Start connects to the broker and subscribes. The subscription is renewed
// on every reconnect.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(b.cfg.Broker))
	opts.SetClientID(b.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	// Handlers submit concurrently; the ingest commit section orders them.
	opts.SetOrderMatters(false)

	opts.OnConnect = func(c mqtt.Client) {
		b.log.Info("mqtt connection established", zap.String("broker", b.cfg.Broker))
		token := c.Subscribe(b.cfg.Topic, b.cfg.QoS, b.handle)
		if !token.WaitTimeout(subscribeTimeout) {
			b.log.Error("mqtt subscribe timeout")
			return
		}
		if err := token.Error(); err != nil {
			b.log.Error("mqtt subscribe failed", zap.Error(err))
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.log.Warn("mqtt connection lost, will auto-reconnect", zap.Error(err))
	}

	b.client = mqtt.NewClient(opts)
	b.log.Info("connecting to mqtt broker", zap.String("broker", b.cfg.Broker))
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// ConnectRetry keeps trying in the background.
		b.log.Warn("mqtt connection pending", zap.Duration("waited", connectTimeout))
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Stop unsubscribes and disconnects.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	if b.client == nil {
		return
	}
	if b.client.IsConnected() {
		b.client.Unsubscribe(b.cfg.Topic).WaitTimeout(time.Second)
	}
	b.client.Disconnect(250)
	b.log.Info("mqtt disconnected")
}

func (b *Bridge) handle(_ mqtt.Client, msg mqtt.Message) {
	b.mu.RLock()
	parent := b.ctx
	b.mu.RUnlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, submitTimeout)
	defer cancel()

	view, err := b.sub.Submit(ctx, msg.Payload(), b.creds)
	outcome := classify(err)
	metrics.RecordBridgeMessage(outcome)

	if err != nil {
		b.log.Warn("capture rejected",
			zap.Uint16("message_id", msg.MessageID()),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return
	}
	b.log.Debug("capture accepted", zap.Int64("id", view.ID))
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ingest.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ingest.ErrInvalidRequest):
		return OutcomeInvalid
	case errors.Is(err, ingest.ErrUnprocessable):
		return OutcomeUnprocessable
	}
	return OutcomeError
}

// brokerURL accepts host:port and defaults the scheme to tcp.
func brokerURL(broker string) string {
	broker = strings.TrimSpace(broker)
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
