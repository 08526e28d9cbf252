// Package publish sends every zone state to an MQTT broker. Messages are
// queued and sent by a worker so a slow broker never stalls a tick.
package publish

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"codeberg.org/mutker/chassisctl/internal/cooling"
	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultClientID       = "chassisctl"
	defaultQueueSize      = 32
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMs   = 250
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	// Retain keeps the last state of each zone on the broker
	Retain    bool
	QueueSize int
}

type message struct {
	topic   string
	payload []byte
}

// sender is the part of mqtt.Client the worker uses.
type sender interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Publisher struct {
	cfg    Config
	client mqtt.Client
	sender sender
	log    logger.Logger

	queue  chan message
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

var _ cooling.Observer = (*Publisher)(nil)

// New connects to the broker and starts the sender worker.
func New(cfg Config, log logger.Logger) (*Publisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("Lost connection to MQTT broker")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		client.Disconnect(disconnectQuiesceMs)
		return nil, errors.New().WithMessage(ErrConnectFailed, "timed out connecting to "+cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.New().Wrap(ErrConnectFailed, err)
	}

	p := newPublisher(cfg, client, log)
	p.client = client
	return p, nil
}

func newPublisher(cfg Config, s sender, log logger.Logger) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	p := &Publisher{
		cfg:    cfg,
		sender: s,
		log:    log,
		queue:  make(chan message, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go p.worker()
	return p
}

// Topic is where the state of zone is published.
func (p *Publisher) Topic(zone string) string {
	return p.cfg.Topic + "/" + zone
}

// Observe queues the zone state. It fails when the queue is full rather
// than wait for the broker.
func (p *Publisher) Observe(_ context.Context, state cooling.ZoneState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return errors.New().Wrap(ErrEncodeFailed, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New().New(ErrClosed)
	}

	select {
	case p.queue <- message{topic: p.Topic(state.Report.Zone), payload: payload}:
		return nil
	default:
		return errors.New().WithData(ErrQueueFull, state.Report.Zone)
	}
}

func (p *Publisher) worker() {
	defer close(p.done)
	for msg := range p.queue {
		token := p.sender.Publish(msg.topic, p.cfg.QoS, p.cfg.Retain, msg.payload)
		if !token.WaitTimeout(defaultPublishTimeout) {
			p.log.Warn().Str("topic", msg.topic).Msg("Timed out publishing zone state")
			continue
		}
		if err := token.Error(); err != nil {
			p.log.Warn().Str("topic", msg.topic).Err(err).Msg("Failed to publish zone state")
		}
	}
}

// Close drains the queue and disconnects.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		<-p.done
		if p.client != nil {
			p.client.Disconnect(disconnectQuiesceMs)
		}
	})
	return nil
}
