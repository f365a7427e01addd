// Package config provides Viper-based configuration loading for the game server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// maxDeclarationCeiling mirrors round.MaxAmount.
const maxDeclarationCeiling = 1 << 51

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// WebsocketConfig holds the player-facing websocket acceptor settings.
type WebsocketConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Path is the HTTP path upgraded to websocket.
	Path string `mapstructure:"path"`
	// ReadLimit is the largest inbound frame accepted, in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
	// WriteWait bounds a single frame write.
	WriteWait time.Duration `mapstructure:"write_wait"`
	// PongWait is how long the connection may stay silent before it is dropped.
	PongWait time.Duration `mapstructure:"pong_wait"`
	// PingPeriod is the control-frame ping cadence; it must be shorter than PongWait.
	PingPeriod time.Duration `mapstructure:"ping_period"`
	// HealthPingPeriod is the WS_HEALTH_PING envelope cadence.
	HealthPingPeriod time.Duration `mapstructure:"health_ping_period"`
	// SendBuffer is the per-session outbound queue length.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
func (w WebsocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// AdminConfig holds the operator HTTP API and gRPC health endpoints.
type AdminConfig struct {
	HTTPHost string `mapstructure:"http_host"`
	HTTPPort int    `mapstructure:"http_port"`
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// HTTPAddr returns the admin HTTP listen address.
func (a AdminConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", a.HTTPHost, a.HTTPPort)
}

// GRPCAddr returns the gRPC health listen address.
func (a AdminConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", a.GRPCHost, a.GRPCPort)
}

// GameConfig holds gameplay and identifier settings.
type GameConfig struct {
	// SessionCreateTimeout bounds the session supervisor ask.
	SessionCreateTimeout time.Duration `mapstructure:"session_create_timeout"`
	// SelectionWindow is how long each round waits for both roles.
	SelectionWindow time.Duration `mapstructure:"selection_window"`
	RoundsPerGame   int           `mapstructure:"rounds_per_game"`
	// MaxDeclaration caps declarations and thresholds; 0 means the engine's
	// ceiling of 2^51.
	MaxDeclaration int64 `mapstructure:"max_declaration"`
	// TimeoutPolicy is "default" (force zero / PASS) or "void".
	TimeoutPolicy string `mapstructure:"timeout_policy"`
	// Epoch is the RFC3339 instant identifiers count milliseconds from.
	Epoch string `mapstructure:"epoch"`
	// NodeID is the room manager's own generator entity id.
	NodeID int64 `mapstructure:"node_id"`
	// SettlementScript is the Lua file defining settle().
	SettlementScript string `mapstructure:"settlement_script"`
	// ScriptInstructionLimit bounds each settle() call; 0 uses the scripting default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
	// RoomsFile is the YAML room seed file; empty means no seeded rooms.
	RoomsFile string `mapstructure:"rooms_file"`
}

// EpochTime parses Epoch.
//
// Precondition: Validate has accepted the configuration.
func (g GameConfig) EpochTime() time.Time {
	t, _ := time.Parse(time.RFC3339, g.Epoch)
	return t
}

// BlacklistConfig selects the blacklist repository.
type BlacklistConfig struct {
	// Store is "memory", "sqlite", or "postgres".
	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Game      GameConfig      `mapstructure:"game"`
	Blacklist BlacklistConfig `mapstructure:"blacklist"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	collect := func(section []string) { errs = append(errs, section...) }

	collect(validateLogging(c.Logging))
	collect(validateWebsocket(c.Websocket))
	collect(validateAdmin(c.Admin))
	collect(validateGame(c.Game))
	collect(validateBlacklist(c.Blacklist))
	if c.Blacklist.Store == "postgres" {
		collect(validateDatabase(c.Database))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func validateLogging(l LoggingConfig) []string {
	var errs []string
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of [debug, info, warn, error], got %q", l.Level))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		errs = append(errs, fmt.Sprintf("logging.format must be one of [json, console], got %q", l.Format))
	}
	return errs
}

func validateWebsocket(w WebsocketConfig) []string {
	var errs []string
	if !validPort(w.Port) {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with /, got %q", w.Path))
	}
	if w.ReadLimit < 1 {
		errs = append(errs, fmt.Sprintf("websocket.read_limit must be >= 1, got %d", w.ReadLimit))
	}
	if w.WriteWait <= 0 {
		errs = append(errs, "websocket.write_wait must be positive")
	}
	if w.PongWait <= 0 {
		errs = append(errs, "websocket.pong_wait must be positive")
	}
	if w.PingPeriod <= 0 || w.PingPeriod >= w.PongWait {
		errs = append(errs, fmt.Sprintf("websocket.ping_period must be positive and shorter than pong_wait (%s), got %s", w.PongWait, w.PingPeriod))
	}
	if w.HealthPingPeriod <= 0 {
		errs = append(errs, "websocket.health_ping_period must be positive")
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	return errs
}

func validateAdmin(a AdminConfig) []string {
	var errs []string
	if !validPort(a.HTTPPort) {
		errs = append(errs, fmt.Sprintf("admin.http_port must be 1-65535, got %d", a.HTTPPort))
	}
	if a.GRPCHost == "" {
		errs = append(errs, "admin.grpc_host must not be empty")
	}
	if !validPort(a.GRPCPort) {
		errs = append(errs, fmt.Sprintf("admin.grpc_port must be 1-65535, got %d", a.GRPCPort))
	}
	return errs
}

func validateGame(g GameConfig) []string {
	var errs []string
	if g.SessionCreateTimeout <= 0 {
		errs = append(errs, "game.session_create_timeout must be positive")
	}
	if g.SelectionWindow <= 0 {
		errs = append(errs, "game.selection_window must be positive")
	}
	if g.RoundsPerGame < 1 {
		errs = append(errs, fmt.Sprintf("game.rounds_per_game must be >= 1, got %d", g.RoundsPerGame))
	}
	if g.MaxDeclaration < 0 || g.MaxDeclaration > maxDeclarationCeiling {
		errs = append(errs, fmt.Sprintf("game.max_declaration must be in [0, %d], got %d", int64(maxDeclarationCeiling), g.MaxDeclaration))
	}
	if g.TimeoutPolicy != "default" && g.TimeoutPolicy != "void" {
		errs = append(errs, fmt.Sprintf("game.timeout_policy must be one of [default, void], got %q", g.TimeoutPolicy))
	}
	epoch, err := time.Parse(time.RFC3339, g.Epoch)
	if err != nil {
		errs = append(errs, fmt.Sprintf("game.epoch must be RFC3339: %v", err))
	} else if epoch.After(time.Now()) {
		errs = append(errs, fmt.Sprintf("game.epoch %s is in the future", g.Epoch))
	}
	if g.NodeID < 0 || g.NodeID > 1023 {
		errs = append(errs, fmt.Sprintf("game.node_id must be 0-1023, got %d", g.NodeID))
	}
	if g.SettlementScript == "" {
		errs = append(errs, "game.settlement_script must not be empty")
	}
	if g.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("game.script_instruction_limit must be >= 0, got %d", g.ScriptInstructionLimit))
	}
	return errs
}

func validateBlacklist(b BlacklistConfig) []string {
	switch b.Store {
	case "memory", "postgres":
		return nil
	case "sqlite":
		if b.SQLitePath == "" {
			return []string{"blacklist.sqlite_path must not be empty when blacklist.store is sqlite"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("blacklist.store must be one of [memory, sqlite, postgres], got %q", b.Store)}
	}
}

func validateDatabase(d DatabaseConfig) []string {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return errs
}

// Load reads configuration from the given file path, applies SMUGGLE_* environment
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and environment overrides set
// but no config file attached.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SMUGGLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 8080)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_limit", 4096)
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_period", "54s")
	v.SetDefault("websocket.health_ping_period", "15s")
	v.SetDefault("websocket.send_buffer", 64)

	v.SetDefault("admin.http_host", "127.0.0.1")
	v.SetDefault("admin.http_port", 8081)
	v.SetDefault("admin.grpc_host", "127.0.0.1")
	v.SetDefault("admin.grpc_port", 50051)

	v.SetDefault("game.session_create_timeout", "3s")
	v.SetDefault("game.selection_window", "30s")
	v.SetDefault("game.rounds_per_game", 4)
	v.SetDefault("game.max_declaration", 0)
	v.SetDefault("game.timeout_policy", "default")
	v.SetDefault("game.epoch", "2024-01-01T00:00:00Z")
	v.SetDefault("game.node_id", 0)
	v.SetDefault("game.settlement_script", "content/scripts/settlement.lua")
	v.SetDefault("game.script_instruction_limit", 0)
	v.SetDefault("game.rooms_file", "")

	v.SetDefault("blacklist.store", "memory")
	v.SetDefault("blacklist.sqlite_path", "data/blacklist.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "smuggle")
	v.SetDefault("database.password", "smuggle")
	v.SetDefault("database.name", "smuggle")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
}
