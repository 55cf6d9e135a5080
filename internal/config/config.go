package config

import (
	"fmt"
	"time"

	"github.com/estate360/positioner/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "positioner.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	Tag            string `json:"tag" mapstructure:"tag"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// StorageConfig selects and configures the placement storage backend
type StorageConfig struct {
	Type   string // memory, sqlite, postgres, websocket
	Memory MemoryConfig
	SQLite SQLiteConfig
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// ViewerConfig holds what the viewer passes to the rendering engine
type ViewerConfig struct {
	Container   string
	DefaultZoom float64
	Navbar      []string
	EventBuffer int
	Degrees     bool
}

// MarkerConfig holds how markers are drawn
type MarkerConfig struct {
	Draft    core.RenderSpec
	Property core.RenderSpec
}

// InfluxConfig holds InfluxDB telemetry settings
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
	Bucket   string
}

// URL returns the InfluxDB server URL.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// APIConfig holds the panorama service client settings
type APIConfig struct {
	ServerURL  string
	APIKey     string
	ProbeImage bool
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN returns the libpq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// MonitorConfig holds status file settings
type MonitorConfig struct {
	Enabled    bool
	StatusPath string
	Interval   time.Duration
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers the default of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("defaultTag", "survey")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.probeImage", true)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "estate360")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "estate360")
	viper.SetDefault("influx.bucket", "placements")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("viewer.container", "panorama-viewer")
	viper.SetDefault("viewer.defaultZoom", 50.0)
	viper.SetDefault("viewer.navbar", []string{"zoom", "move", "caption", "fullscreen"})
	viper.SetDefault("viewer.eventBuffer", 64)
	viper.SetDefault("viewer.degrees", false)

	viper.SetDefault("marker.draft.image", "pin-red.png")
	viper.SetDefault("marker.draft.size", 32.0)
	viper.SetDefault("marker.draft.tooltip", "New position")
	viper.SetDefault("marker.draft.anchor", "bottom center")
	viper.SetDefault("marker.property.image", "pin-blue.png")
	viper.SetDefault("marker.property.size", 24.0)
	viper.SetDefault("marker.property.anchor", "bottom center")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./placements")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./placements.db")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "panorama-positioner")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.statusPath", "./positioner.status.json")
	viper.SetDefault("monitor.interval", "1s")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			Tag:            viper.GetString("defaultTag"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetViewerConfig returns the rendering engine configuration.
func GetViewerConfig() ViewerConfig {
	return ViewerConfig{
		Container:   viper.GetString("viewer.container"),
		DefaultZoom: viper.GetFloat64("viewer.defaultZoom"),
		Navbar:      viper.GetStringSlice("viewer.navbar"),
		EventBuffer: viper.GetInt("viewer.eventBuffer"),
		Degrees:     viper.GetBool("viewer.degrees"),
	}
}

func renderSpec(prefix string) core.RenderSpec {
	return core.RenderSpec{
		Image:   viper.GetString(prefix + ".image"),
		Size:    viper.GetFloat64(prefix + ".size"),
		Tooltip: viper.GetString(prefix + ".tooltip"),
		Anchor:  viper.GetString(prefix + ".anchor"),
	}
}

// GetMarkerConfig returns how the draft and property markers are drawn.
func GetMarkerConfig() MarkerConfig {
	return MarkerConfig{
		Draft:    renderSpec("marker.draft"),
		Property: renderSpec("marker.property"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetAPIConfig returns the panorama service client configuration.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL:  viper.GetString("api.serverUrl"),
		APIKey:     viper.GetString("api.apiKey"),
		ProbeImage: viper.GetBool("api.probeImage"),
	}
}

// GetGraylogConfig returns the GELF log shipping configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetDBConfig returns the Postgres connection configuration.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetMonitorConfig returns the status monitor configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		StatusPath: viper.GetString("monitor.statusPath"),
		Interval:   viper.GetDuration("monitor.interval"),
	}
}
