package status

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTReporterConfig holds the broker connection and publishing settings.
type MQTTReporterConfig struct {
	BrokerURL          string
	Topic              string
	ClientIDPrefix     string
	Username           string
	Password           string
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool
	KeepAlive          time.Duration
	ConnectTimeout     time.Duration
	// DiagnosticsInterval rate-limits diagnostics publishing; the uploader
	// reports on every invocation, which is far too often for a broker.
	DiagnosticsInterval time.Duration
	// FatalPublishTimeout bounds how long a fatal report waits for delivery.
	FatalPublishTimeout time.Duration
}

// publisher is the subset of mqtt.Client the reporter uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type statusMessage struct {
	Code  int       `json:"code"`
	Name  string    `json:"name"`
	Fatal bool      `json:"fatal"`
	At    time.Time `json:"at"`
}

// MQTTReporter publishes status codes and diagnostics to an MQTT broker as
// retained JSON documents, standing in for the device's status LED. It never
// restarts the process; pair it with a LogReporter in a Multi for that.
type MQTTReporter struct {
	config MQTTReporterConfig
	client publisher
	logger zerolog.Logger
	now    func() time.Time

	mu            sync.Mutex
	lastCode      Code
	published     bool
	lastDiagnosed time.Time
}

// NewMQTTReporter connects to the broker and returns a reporter.
func NewMQTTReporter(config MQTTReporterConfig, logger zerolog.Logger) (*MQTTReporter, mqtt.Client, error) {
	if config.BrokerURL == "" {
		return nil, nil, errors.New("mqtt broker URL is required")
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = 10 * time.Second
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(fmt.Sprintf("%s%d", config.ClientIDPrefix, time.Now().UnixNano()%1000000))
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetKeepAlive(config.KeepAlive)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("Status broker connection lost, auto-reconnect will be attempted")
	})

	lower := strings.ToLower(config.BrokerURL)
	if strings.HasPrefix(lower, "tls://") || strings.HasPrefix(lower, "ssl://") {
		tlsConfig, err := newTLSConfig(&config)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(config.ConnectTimeout) && token.Error() != nil {
		return nil, nil, fmt.Errorf("mqtt connect to %s: %w", config.BrokerURL, token.Error())
	}
	logger.Info().Str("broker", config.BrokerURL).Str("topic", config.Topic).Msg("Status reporter connected to MQTT broker")

	return newMQTTReporter(config, client, logger), client, nil
}

func newMQTTReporter(config MQTTReporterConfig, client publisher, logger zerolog.Logger) *MQTTReporter {
	if config.Topic == "" {
		config.Topic = "datalogger"
	}
	if config.DiagnosticsInterval <= 0 {
		config.DiagnosticsInterval = time.Second
	}
	if config.FatalPublishTimeout <= 0 {
		config.FatalPublishTimeout = 2 * time.Second
	}
	return &MQTTReporter{
		config: config,
		client: client,
		logger: logger.With().Str("component", "MQTTReporter").Logger(),
		now:    time.Now,
	}
}

// Report publishes the code when it changes, and always for fatal conditions.
// Fatal reports wait for delivery so they land before the restart.
func (r *MQTTReporter) Report(code Code, fatal bool) {
	r.mu.Lock()
	skip := !fatal && r.published && code == r.lastCode
	r.lastCode = code
	r.published = true
	r.mu.Unlock()
	if skip {
		return
	}

	payload, err := json.Marshal(statusMessage{Code: int(code), Name: code.String(), Fatal: fatal, At: r.now().UTC()})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal status message")
		return
	}
	token := r.client.Publish(r.config.Topic+"/status", 1, true, payload)
	if fatal {
		if token.WaitTimeout(r.config.FatalPublishTimeout) && token.Error() != nil {
			r.logger.Error().Err(token.Error()).Msg("Failed to publish fatal status")
		}
	}
}

// Diagnostics publishes pipeline state at most once per DiagnosticsInterval.
func (r *MQTTReporter) Diagnostics(d Diagnostics) {
	now := r.now()
	r.mu.Lock()
	if !r.lastDiagnosed.IsZero() && now.Sub(r.lastDiagnosed) < r.config.DiagnosticsInterval {
		r.mu.Unlock()
		return
	}
	r.lastDiagnosed = now
	r.mu.Unlock()

	payload, err := json.Marshal(d)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal diagnostics")
		return
	}
	r.client.Publish(r.config.Topic+"/diagnostics", 0, true, payload)
}

// newTLSConfig creates a TLS configuration for the MQTT client.
func newTLSConfig(cfg *MQTTReporterConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate from %s to pool", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
