// Package config loads taskhub's configuration from a file plus
// TASKHUB_-prefixed environment overrides, following the teacher's viper
// wiring in cmd/config.go.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for one process.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Worker   WorkerConfig
	Work     WorkConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Host   string
	Port   int
	WSPort int
}

type DatabaseConfig struct {
	DBPath         string
	MigrationsDir  string
}

type LogConfig struct {
	Path        string
	MaxRecords  int
	RotateBytes int64
	MaxFiles    int
}

// WorkerConfig configures the master's view of remote worker selection.
type WorkerConfig struct {
	SelectStrategy string // "least-load" or "rr"
}

// WorkConfig configures this node acting as a remote worker.
type WorkConfig struct {
	IsWork              bool
	MasterHost          string
	MasterPort          int
	WorkerID            string
	WorkerHost          string
	WorkerPort          int
	HeartbeatInterval   time.Duration
	MaxRunningTasks     int
	Queues              []string
	Labels              []string
}

type AuthConfig struct {
	TokenTTL time.Duration
	Secret   string
}

// TTLOrDefault returns TokenTTL, or 2h if unset (mirrors the viper default
// so callers that construct AuthConfig by hand still get a sane TTL).
func (a AuthConfig) TTLOrDefault() time.Duration {
	if a.TokenTTL <= 0 {
		return 2 * time.Hour
	}
	return a.TokenTTL
}

// Load reads configuration from path (if non-empty) merged with defaults and
// TASKHUB_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TASKHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Named environment overrides from spec §6: TASKHUB_PORT, TASKHUB_HOST,
	// TASKHUB_DB, TASKHUB_LOG map onto the nested keys viper otherwise reads
	// as TASKHUB_SERVER_PORT etc.
	bindAlias(v, "PORT", "server.port")
	bindAlias(v, "HOST", "server.host")
	bindAlias(v, "DB", "database.db_path")
	bindAlias(v, "LOG", "log.path")

	cfg := &Config{
		Server: ServerConfig{
			Host:   v.GetString("server.host"),
			Port:   v.GetInt("server.port"),
			WSPort: v.GetInt("server.ws_port"),
		},
		Database: DatabaseConfig{
			DBPath:        v.GetString("database.db_path"),
			MigrationsDir: v.GetString("database.migrations_dir"),
		},
		Log: LogConfig{
			Path:        v.GetString("log.path"),
			MaxRecords:  v.GetInt("log.maxRecords"),
			RotateBytes: v.GetInt64("log.rotateBytes"),
			MaxFiles:    v.GetInt("log.maxFiles"),
		},
		Worker: WorkerConfig{
			SelectStrategy: v.GetString("worker.select_strategy"),
		},
		Work: WorkConfig{
			IsWork:            v.GetBool("work.is_work"),
			MasterHost:        v.GetString("work.master_host"),
			MasterPort:        v.GetInt("work.master_port"),
			WorkerID:          v.GetString("work.worker_id"),
			WorkerHost:        v.GetString("work.worker_host"),
			WorkerPort:        v.GetInt("work.worker_port"),
			HeartbeatInterval: v.GetDuration("work.heartbeat_interval_ms") * time.Millisecond,
			MaxRunningTasks:   v.GetInt("work.max_running_tasks"),
			Queues:            v.GetStringSlice("work.queues"),
			Labels:            v.GetStringSlice("work.labels"),
		},
		Auth: AuthConfig{
			TokenTTL: v.GetDuration("auth.token_ttl"),
			Secret:   v.GetString("auth.secret"),
		},
	}
	return cfg, nil
}

func bindAlias(v *viper.Viper, env, key string) {
	_ = v.BindEnv(key, "TASKHUB_"+env)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ws_port", 8090)
	v.SetDefault("database.db_path", "./taskhub.db")
	v.SetDefault("database.migrations_dir", "internal/store/sqlite/migrations")
	v.SetDefault("log.path", "./logs")
	v.SetDefault("log.maxRecords", 2000)
	v.SetDefault("log.rotateBytes", 10*1024*1024)
	v.SetDefault("log.maxFiles", 5)
	v.SetDefault("worker.select_strategy", "least-load")
	v.SetDefault("work.is_work", false)
	v.SetDefault("work.heartbeat_interval_ms", 3000)
	v.SetDefault("work.max_running_tasks", 4)
	// The source's default AuthManager TTL was 30s, almost certainly a debug
	// value (spec §9 Open Questions); this default is 2h instead.
	v.SetDefault("auth.token_ttl", 2*time.Hour)
	v.SetDefault("auth.secret", "change-me")
}
