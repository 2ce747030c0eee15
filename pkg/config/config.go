package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreLog       = "log"
	StoreFirestore = "firestore"
	StoreGCS       = "gcs"
	StoreBigQuery  = "bigquery"
	StoreRedis     = "redis"
)

// Sensor kinds.
const (
	SensorSimulated = "simulated"
	SensorSerial    = "serial"
)

// Config is the complete data logger configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Buffer   BufferConfig   `yaml:"buffer"`
	Uploader UploaderConfig `yaml:"uploader"`
	Clock    ClockConfig    `yaml:"clock"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Status   StatusConfig   `yaml:"status"`
	Store    StoreConfig    `yaml:"store"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// SamplerConfig contains the sampling period (50 Hz by default).
type SamplerConfig struct {
	Period time.Duration `yaml:"period"`
}

// BufferConfig sizes the ring buffer.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// UploaderConfig controls batching and pacing of uploads.
type UploaderConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	SendInterval  time.Duration `yaml:"send_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"` // 0 retries on the next poll
	PushTimeout   time.Duration `yaml:"push_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// ClockConfig selects the partition timezone and the optional NTP server.
type ClockConfig struct {
	Timezone       string        `yaml:"timezone"`
	NTPServer      string        `yaml:"ntp_server"` // empty disables NTP correction
	NTPTimeout     time.Duration `yaml:"ntp_timeout"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

// SensorConfig selects the acquisition source.
type SensorConfig struct {
	Kind      string          `yaml:"kind"`
	Serial    SerialConfig    `yaml:"serial"`
	Simulated SimulatedConfig `yaml:"simulated"`
}

// SerialConfig contains serial port configuration for the ADC bridge.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// SimulatedConfig shapes the bench signal.
type SimulatedConfig struct {
	Baseline  int           `yaml:"baseline"`
	Amplitude int           `yaml:"amplitude"`
	Period    time.Duration `yaml:"period"`
	ActiveFor time.Duration `yaml:"active_for"`
	IdleFor   time.Duration `yaml:"idle_for"`
}

// StatusConfig configures status reporting.
type StatusConfig struct {
	RestartDelay time.Duration `yaml:"restart_delay"`
	MQTT         MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig configures the optional MQTT status reporter. An empty broker URL
// disables it.
type MQTTConfig struct {
	BrokerURL           string        `yaml:"broker_url"`
	Topic               string        `yaml:"topic"`
	ClientIDPrefix      string        `yaml:"client_id_prefix"`
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	CACertFile          string        `yaml:"ca_cert_file"`
	ClientCertFile      string        `yaml:"client_cert_file"`
	ClientKeyFile       string        `yaml:"client_key_file"`
	InsecureSkipVerify  bool          `yaml:"insecure_skip_verify"`
	DiagnosticsInterval time.Duration `yaml:"diagnostics_interval"`
}

// StoreConfig selects and configures the remote store.
type StoreConfig struct {
	Kind      string          `yaml:"kind"`
	Firestore FirestoreConfig `yaml:"firestore"`
	GCS       GCSConfig       `yaml:"gcs"`
	BigQuery  BigQueryConfig  `yaml:"bigquery"`
	Redis     RedisConfig     `yaml:"redis"`
}

// FirestoreConfig holds configuration for the Firestore store.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	DatabaseID      string `yaml:"database_id"`
	RootCollection  string `yaml:"root_collection"`
	BootCollection  string `yaml:"boot_collection"`
	CredentialsFile string `yaml:"credentials_file"`
}

// GCSConfig holds configuration for the Cloud Storage store.
type GCSConfig struct {
	ProjectID       string `yaml:"project_id"`
	BucketName      string `yaml:"bucket_name"`
	ObjectPrefix    string `yaml:"object_prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// BigQueryConfig holds configuration for the BigQuery store.
type BigQueryConfig struct {
	ProjectID       string `yaml:"project_id"`
	DatasetID       string `yaml:"dataset_id"`
	TableID         string `yaml:"table_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"` // 0 keeps partitions forever
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Sampler: SamplerConfig{
			Period: 20 * time.Millisecond,
		},
		Buffer: BufferConfig{
			Capacity: 1024,
		},
		Uploader: UploaderConfig{
			BatchSize:    50,
			SendInterval: time.Second,
			PushTimeout:  10 * time.Second,
			PollInterval: time.Millisecond,
		},
		Clock: ClockConfig{
			NTPTimeout:     5 * time.Second,
			ResyncInterval: time.Hour,
		},
		Sensor: SensorConfig{
			Kind: SensorSimulated,
			Serial: SerialConfig{
				BaudRate:    460800,
				ReadTimeout: 50 * time.Millisecond,
			},
			Simulated: SimulatedConfig{
				Baseline:  1200,
				Amplitude: 400,
				Period:    2 * time.Second,
			},
		},
		Status: StatusConfig{
			RestartDelay: 3 * time.Second,
			MQTT: MQTTConfig{
				Topic:               "datalogger",
				ClientIDPrefix:      "datalogger-",
				DiagnosticsInterval: time.Second,
			},
		},
		Store: StoreConfig{
			Kind: StoreLog,
			Firestore: FirestoreConfig{
				RootCollection: "sensor_readings",
				BootCollection: "bootLog",
			},
			GCS: GCSConfig{
				ObjectPrefix: "sensor_readings",
			},
			BigQuery: BigQueryConfig{
				DatasetID: "datalogger",
				TableID:   "sensor_readings",
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "sensor_readings",
			},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values. Environment overrides are
// applied last.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ensureDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills zero values left by a partial file.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Sampler.Period == 0 {
		c.Sampler.Period = def.Sampler.Period
	}
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = def.Buffer.Capacity
	}
	if c.Uploader.BatchSize == 0 {
		c.Uploader.BatchSize = def.Uploader.BatchSize
	}
	if c.Uploader.SendInterval == 0 {
		c.Uploader.SendInterval = def.Uploader.SendInterval
	}
	if c.Uploader.PushTimeout == 0 {
		c.Uploader.PushTimeout = def.Uploader.PushTimeout
	}
	if c.Uploader.PollInterval == 0 {
		c.Uploader.PollInterval = def.Uploader.PollInterval
	}
	if c.Clock.NTPTimeout == 0 {
		c.Clock.NTPTimeout = def.Clock.NTPTimeout
	}
	if c.Sensor.Kind == "" {
		c.Sensor.Kind = def.Sensor.Kind
	}
	if c.Sensor.Serial.BaudRate == 0 {
		c.Sensor.Serial.BaudRate = def.Sensor.Serial.BaudRate
	}
	if c.Sensor.Serial.ReadTimeout == 0 {
		c.Sensor.Serial.ReadTimeout = def.Sensor.Serial.ReadTimeout
	}
	if c.Sensor.Simulated.Period == 0 {
		c.Sensor.Simulated.Period = def.Sensor.Simulated.Period
	}
	if c.Status.MQTT.Topic == "" {
		c.Status.MQTT.Topic = def.Status.MQTT.Topic
	}
	if c.Status.MQTT.ClientIDPrefix == "" {
		c.Status.MQTT.ClientIDPrefix = def.Status.MQTT.ClientIDPrefix
	}
	if c.Status.MQTT.DiagnosticsInterval == 0 {
		c.Status.MQTT.DiagnosticsInterval = def.Status.MQTT.DiagnosticsInterval
	}
	if c.Store.Kind == "" {
		c.Store.Kind = def.Store.Kind
	}
	if c.Store.Firestore.RootCollection == "" {
		c.Store.Firestore.RootCollection = def.Store.Firestore.RootCollection
	}
	if c.Store.Firestore.BootCollection == "" {
		c.Store.Firestore.BootCollection = def.Store.Firestore.BootCollection
	}
	if c.Store.GCS.ObjectPrefix == "" {
		c.Store.GCS.ObjectPrefix = def.Store.GCS.ObjectPrefix
	}
	if c.Store.BigQuery.DatasetID == "" {
		c.Store.BigQuery.DatasetID = def.Store.BigQuery.DatasetID
	}
	if c.Store.BigQuery.TableID == "" {
		c.Store.BigQuery.TableID = def.Store.BigQuery.TableID
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = def.Store.Redis.Addr
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = def.Store.Redis.KeyPrefix
	}
}

// applyEnv lets deployment-specific values come from the environment, which
// wins over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATALOGGER_STORE"); v != "" {
		c.Store.Kind = v
	}
	if v := os.Getenv("GCP_PROJECT_ID"); v != "" {
		c.Store.Firestore.ProjectID = v
		c.Store.GCS.ProjectID = v
		c.Store.BigQuery.ProjectID = v
	}
	if v := os.Getenv("GCS_BUCKET_NAME"); v != "" {
		c.Store.GCS.BucketName = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		c.Status.MQTT.BrokerURL = v
	}
	if v := os.Getenv("SERIAL_PORT"); v != "" {
		c.Sensor.Serial.Port = v
	}
}

// Validate checks the values a running logger cannot work without.
func (c *Config) Validate() error {
	var errs []error
	if c.Sampler.Period <= 0 {
		errs = append(errs, errors.New("sampler.period must be positive"))
	}
	if c.Buffer.Capacity <= 0 {
		errs = append(errs, errors.New("buffer.capacity must be positive"))
	}
	if c.Uploader.BatchSize <= 0 {
		errs = append(errs, errors.New("uploader.batch_size must be positive"))
	}
	if c.Uploader.BatchSize > c.Buffer.Capacity {
		errs = append(errs, fmt.Errorf("uploader.batch_size (%d) cannot exceed buffer.capacity (%d)", c.Uploader.BatchSize, c.Buffer.Capacity))
	}
	if c.Uploader.PollInterval <= 0 {
		errs = append(errs, errors.New("uploader.poll_interval must be positive"))
	}

	switch c.Sensor.Kind {
	case SensorSimulated:
	case SensorSerial:
		if c.Sensor.Serial.Port == "" {
			errs = append(errs, errors.New("sensor.serial.port is required for the serial sensor"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sensor.kind %q", c.Sensor.Kind))
	}

	switch c.Store.Kind {
	case StoreLog:
	case StoreFirestore:
		if c.Store.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("store.firestore.project_id is required"))
		}
	case StoreGCS:
		if c.Store.GCS.BucketName == "" {
			errs = append(errs, errors.New("store.gcs.bucket_name is required"))
		}
	case StoreBigQuery:
		if c.Store.BigQuery.ProjectID == "" {
			errs = append(errs, errors.New("store.bigquery.project_id is required"))
		}
	case StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store.kind %q", c.Store.Kind))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
