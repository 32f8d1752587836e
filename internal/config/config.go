// Package config defines Entativa ID core's application configuration,
// in the teacher's go-zero scaffolding style (a flat Config struct loaded
// from YAML via conf.MustLoad, nested structs per concern). There is no
// rest.RestConf/zrpc.RpcServerConf embed: this repository exposes Go
// methods, not a wire server, per SPEC_FULL.md §6.
package config

import (
	"time"

	"github.com/zeromicro/go-zero/core/stores/redis"

	"github.com/entativa/id/domain/identity"
	"github.com/entativa/id/domain/mfa"
	"github.com/entativa/id/domain/session"
	"github.com/entativa/id/domain/token"
)

// Config is the root configuration, loaded from YAML by cmd/idcore via
// conf.MustLoad and consumed by internal/svc.NewServiceContext.
type Config struct {
	Database DatabaseConfig
	Redis    redis.RedisConf
	Log      LogConfig
	Token    TokenConfig
	Identity identity.Config
	Session  session.Config
	MFA      mfa.Config
	Handle   HandleConfig
}

// DatabaseConfig names the Postgres connection, per the teacher's
// shared/config convention of one flat DataSource DSN string.
type DatabaseConfig struct {
	DataSource string
}

// LogConfig mirrors go-zero's logx.LogConf fields actually read at
// startup; kept as a small local struct (rather than embedding logx.LogConf
// directly) so the YAML keys stay explicit, spelled out field-by-field the
// way the teacher's own configs spell them.
type LogConfig struct {
	Mode     string
	Level    string
	Encoding string
}

// TokenConfig carries spec.md §4.4's stated TTL/skew defaults, which feed
// token.DefaultConfig before any override.
type TokenConfig struct {
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ClockSkew  time.Duration
}

// HandleConfig carries spec.md §4.1's handle policy knobs that
// domain/handle currently holds as package constants; it is threaded
// through here so an operator can see them alongside every other option
// even though domain/handle does not yet accept overrides for them.
type HandleConfig struct {
	SimilarityThreshold float64
	MinLength           int
	MaxLength           int
}

// Default returns the configuration spec.md's stated defaults describe,
// suitable as a starting point before a YAML override is applied.
func Default() Config {
	return Config{
		Log: LogConfig{Mode: "console", Level: "info", Encoding: "json"},
		Token: TokenConfig{
			AccessTTL:  token.DefaultConfig("", nil).AccessTTL,
			RefreshTTL: token.DefaultConfig("", nil).RefreshTTL,
			ClockSkew:  token.DefaultConfig("", nil).ClockSkew,
		},
		Identity: identity.DefaultConfig(),
		Session:  session.DefaultConfig(),
		MFA:      mfa.DefaultConfig(),
		Handle: HandleConfig{
			SimilarityThreshold: 0.85,
			MinLength:           3,
			MaxLength:           30,
		},
	}
}

// ToTokenConfig builds the domain/token.Config this application config
// describes.
func (c Config) ToTokenConfig() token.Config {
	cfg := token.DefaultConfig(c.Token.Issuer, c.Token.Audience)
	if c.Token.AccessTTL > 0 {
		cfg.AccessTTL = c.Token.AccessTTL
	}
	if c.Token.RefreshTTL > 0 {
		cfg.RefreshTTL = c.Token.RefreshTTL
	}
	if c.Token.ClockSkew > 0 {
		cfg.ClockSkew = c.Token.ClockSkew
	}
	return cfg
}
