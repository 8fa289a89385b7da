package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	Timezone       string   `mapstructure:"timezone"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type PasswordConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	AccessExpMinutes int    `mapstructure:"access_exp_minutes"`
}

type AuthConfig struct {
	Password PasswordConfig `mapstructure:"password"`
	JWT      JWTConfig      `mapstructure:"jwt"`
}

type EmailConfig struct {
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	FromAddress  string `mapstructure:"from_address"`
	FromName     string `mapstructure:"from_name"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PresenceConfig tunes the presence and tab-usage aggregation pipeline.
// All values are expressed in seconds in the config file.
type PresenceConfig struct {
	FlushIntervalSeconds     int `mapstructure:"flush_interval_seconds"`
	HeartbeatTTLSeconds      int `mapstructure:"heartbeat_ttl_seconds"`
	HeartbeatExpectedSeconds int `mapstructure:"heartbeat_expected_seconds"`
	HeartbeatGraceSeconds    int `mapstructure:"heartbeat_grace_seconds"`
	ConnectTTLSeconds        int `mapstructure:"connect_ttl_seconds"`
	GracePeriodSeconds       int `mapstructure:"grace_period_seconds"`
}

func (p *PresenceConfig) FlushInterval() time.Duration {
	return time.Duration(p.FlushIntervalSeconds) * time.Second
}

func (p *PresenceConfig) HeartbeatTTL() time.Duration {
	return time.Duration(p.HeartbeatTTLSeconds) * time.Second
}

func (p *PresenceConfig) HeartbeatExpected() time.Duration {
	return time.Duration(p.HeartbeatExpectedSeconds) * time.Second
}

func (p *PresenceConfig) HeartbeatGrace() time.Duration {
	return time.Duration(p.HeartbeatGraceSeconds) * time.Second
}

func (p *PresenceConfig) ConnectTTL() time.Duration {
	return time.Duration(p.ConnectTTLSeconds) * time.Second
}

// MaxValidSessionSeconds is the upper bound of the flush validity gate:
// one flush interval plus the grace window. Elapsed durations above it are
// treated as stale markers and skipped.
func (p *PresenceConfig) MaxValidSessionSeconds() int64 {
	return int64(p.FlushIntervalSeconds + p.GracePeriodSeconds)
}
