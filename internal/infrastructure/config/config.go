package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// Config is the root configuration structure for the charger bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site          SiteConfig          `yaml:"site"`
	Charger       ChargerConfig       `yaml:"charger"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Modbus        ModbusConfig        `yaml:"modbus"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Security      SecurityConfig      `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// ChargerConfig contains the charger connection and model settings.
type ChargerConfig struct {
	// BridgeID identifies this bridge in MQTT topics.
	BridgeID string `yaml:"bridge_id"`

	Host string `yaml:"host"`

	// Port is the charger's TCP control port. Default: 2202
	Port int `yaml:"port"`

	// ModelID selects the charger family: sbrc, sbc220 or sbc240.
	// Default: "sbrc"
	ModelID string `yaml:"model_id"`

	// ModuleCount is the number of fitted modules on modular chargers (1-4).
	// Ignored for the rack charger. Default: 1
	ModuleCount int `yaml:"module_count"`

	// Timeouts in seconds.
	ConnectTimeout    int `yaml:"connect_timeout"`
	ReadTimeout       int `yaml:"read_timeout"`
	ReconnectInterval int `yaml:"reconnect_interval"`
	HealthInterval    int `yaml:"health_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Panel    PanelConfig      `yaml:"panel"`
}

// PanelConfig controls the status page served at the API root.
type PanelConfig struct {
	Enabled bool `yaml:"enabled"`
	// Dir serves the page from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ModbusConfig contains the optional Modbus register mirror settings.
type ModbusConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the Modbus TCP server, host:port.
	Endpoint string `yaml:"endpoint"`
	UnitID   int    `yaml:"unit_id"`

	// BaseAddress is the first holding register of the charger block.
	// Bay n's block starts at BaseAddress + n*BayStride.
	BaseAddress int `yaml:"base_address"`
	BayStride   int `yaml:"bay_stride"`

	// Timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// HomeAssistantConfig controls MQTT discovery publishing.
type HomeAssistantConfig struct {
	Discovery       bool   `yaml:"discovery"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. Command endpoints are only
// protected when Secret is set.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_CHARGER_HOST, GRAYLOGIC_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Charger: ChargerConfig{
			BridgeID:          "charger-01",
			Port:              sbrc.DefaultPort,
			ModelID:           sbrc.DefaultModelID,
			ModuleCount:       1,
			ConnectTimeout:    10,
			ReadTimeout:       30,
			ReconnectInterval: 5,
			HealthInterval:    30,
		},
		Database: DatabaseConfig{
			Path:        "./data/charger.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-charger",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Panel: PanelConfig{Enabled: true},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Modbus: ModbusConfig{
			UnitID:      1,
			BaseAddress: 0,
			BayStride:   16,
			Timeout:     5,
		},
		HomeAssistant: HomeAssistantConfig{
			DiscoveryPrefix: sbrc.DefaultDiscoveryPrefix,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Charger
	if v := os.Getenv("GRAYLOGIC_CHARGER_HOST"); v != "" {
		cfg.Charger.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_CHARGER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Charger.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_CHARGER_MODEL"); v != "" {
		cfg.Charger.ModelID = v
	}
	if v := os.Getenv("GRAYLOGIC_CHARGER_MODULE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Charger.ModuleCount = n
		}
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Modbus
	if v := os.Getenv("GRAYLOGIC_MODBUS_ENDPOINT"); v != "" {
		cfg.Modbus.Endpoint = v
	}

	// Security
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Charger validation
	if c.Charger.Host == "" {
		errs = append(errs, "charger.host is required (set GRAYLOGIC_CHARGER_HOST environment variable)")
	}
	if c.Charger.Port < 1 || c.Charger.Port > 65535 {
		errs = append(errs, "charger.port must be between 1 and 65535")
	}
	if _, err := sbrc.LookupModel(c.Charger.ModelID); err != nil {
		errs = append(errs, fmt.Sprintf("charger.model_id %q is not a known model", c.Charger.ModelID))
	}
	if c.Charger.ModuleCount < 1 || c.Charger.ModuleCount > sbrc.MaxModuleCount {
		errs = append(errs, fmt.Sprintf("charger.module_count must be between 1 and %d", sbrc.MaxModuleCount))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Modbus.Enabled && c.Modbus.Endpoint == "" {
		errs = append(errs, "modbus.endpoint is required when modbus is enabled")
	}
	if c.Modbus.UnitID < 0 || c.Modbus.UnitID > 247 {
		errs = append(errs, "modbus.unit_id must be between 0 and 247")
	}
	if c.Modbus.BaseAddress < 0 || c.Modbus.BaseAddress > 65535 || c.Modbus.BayStride < 0 || c.Modbus.BayStride > 65535 {
		errs = append(errs, "modbus.base_address and modbus.bay_stride must be between 0 and 65535")
	}

	// A weak secret would let anyone forge command tokens.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ChargerAddress returns the charger's host:port.
func (c *Config) ChargerAddress() string {
	return net.JoinHostPort(c.Charger.Host, strconv.Itoa(c.Charger.Port))
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
