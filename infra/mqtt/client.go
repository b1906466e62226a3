package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	QoS         byte        `json:"qos"`
	Retain      bool        `json:"retain"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	LWTTopic    string      `json:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	RunID       string      `json:"run_id"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "fleetsim"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "fleetsim"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: qos %d outside [0,2]", c.QoS)
	}
	if c.MaxRetries < 0 || c.BackoffMS < 0 {
		return fmt.Errorf("mqtt: retries and backoff must not be negative")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Envelope wraps every forwarded event.
type Envelope struct {
	RunID string `json:"run_id"`
	Type  string `json:"type"`
	Event any    `json:"event"`
}

// Forwarder publishes simulation events to an MQTT broker, one topic per
// event type under the configured prefix.
type Forwarder struct {
	cli        pahoClient
	prefix     string
	qos        byte
	retain     bool
	runID      string
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger

	mu      sync.Mutex
	sent    int
	dropped int
}

// NewForwarder connects to the broker. Every published envelope carries
// cfg.RunID, or a fresh one when it is empty.
func NewForwarder(cfg Config) (*Forwarder, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_forwarder")
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Forwarder{
		cli:        c,
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		runID:      runID,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
	}, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.QoS, true)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// RunID identifies the run on every envelope.
func (f *Forwarder) RunID() string { return f.runID }

// Topic returns the topic an event type is published on.
func (f *Forwarder) Topic(eventType string) string {
	return f.prefix + "/events/" + eventType
}

// EventType names an event for topics and envelopes. Unknown values
// return false.
func EventType(ev any) (string, bool) { return events.Name(ev) }

// Forward publishes one event, retrying with exponential backoff.
func (f *Forwarder) Forward(ev any) error {
	typ, ok := EventType(ev)
	if !ok {
		return fmt.Errorf("mqtt: unsupported event %T", ev)
	}
	payload, err := json.Marshal(Envelope{RunID: f.runID, Type: typ, Event: ev})
	if err != nil {
		return err
	}
	topic := f.Topic(typ)
	var publishErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		token := f.cli.Publish(topic, f.qos, f.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			f.mu.Lock()
			f.sent++
			f.mu.Unlock()
			return nil
		}
		f.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < f.maxRetries {
			time.Sleep(f.backoff * time.Duration(1<<attempt))
		}
	}
	f.mu.Lock()
	f.dropped++
	f.mu.Unlock()
	return publishErr
}

// Stats reports published and dropped events.
func (f *Forwarder) Stats() (sent, dropped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent, f.dropped
}

// Start forwards bus events until ctx is canceled or the bus closes. The
// returned channel is closed once forwarding has stopped.
func (f *Forwarder) Start(ctx context.Context, bus eventbus.EventBus) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if _, known := EventType(ev); !known {
					continue
				}
				if err := f.Forward(ev); err != nil {
					f.logger.Warnf("forward %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

// Disconnect gracefully closes the MQTT connection.
func (f *Forwarder) Disconnect() {
	if f.cli != nil && f.cli.IsConnected() {
		f.cli.Disconnect(250)
	}
}
