// Package config defines the multiplexer's configuration surface (§6) and
// loads it from CLI flags the way cmd/geth and cmd/blsync build their
// urfave/cli/v2 apps, plus the TOML client-secrets file.
package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// Config is the fully resolved, typed configuration surface of §6, plus
// the supplemented additions documented in SPEC_FULL.md (EngineTimeout,
// Network).
type Config struct {
	ListenAddress string
	ListenPort    int

	EngineURL       string
	EngineJWTSecret []byte
	EngineTimeout   time.Duration

	ControllerJWTSecret []byte
	ClientSecretsPath   string
	ClientSecrets       map[string][]byte

	NewPayloadCacheSize     int
	FCUCacheSize            int
	PayloadBuilderCacheSize int
	JustifiedBlockCacheSize int
	FinalizedBlockCacheSize int

	NewPayloadWait       time.Duration
	NewPayloadWaitCutoff uint64
	FCUWait              time.Duration

	PayloadBuilderExtraData string

	FCUMatching string
	Network     string

	BodyLimitBytes        int64
	MaxPayloadBodiesBatch int

	Verbosity int
	LogJSON   bool
}

// FromCLI resolves a Config from a parsed cli.Context, decoding the hex
// JWT secrets and loading the TOML client-secrets file.
func FromCLI(c *cli.Context) (*Config, error) {
	engineSecret, err := decodeHexSecret(c.String(EngineJWTSecretFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("ee_jwt_secret: %w", err)
	}
	controllerSecret, err := decodeHexSecret(c.String(ControllerJWTSecretFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("controller_jwt_secret: %w", err)
	}

	secretsPath := c.String(ClientSecretsFlag.Name)
	secrets, err := LoadClientSecrets(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("client_jwt_secrets: %w", err)
	}

	cfg := &Config{
		ListenAddress: c.String(ListenAddressFlag.Name),
		ListenPort:    c.Int(ListenPortFlag.Name),

		EngineURL:       c.String(EngineURLFlag.Name),
		EngineJWTSecret: engineSecret,
		EngineTimeout:   time.Duration(c.Int(EngineTimeoutMillisFlag.Name)) * time.Millisecond,

		ControllerJWTSecret: controllerSecret,
		ClientSecretsPath:   secretsPath,
		ClientSecrets:       secrets,

		NewPayloadCacheSize:     c.Int(NewPayloadCacheSizeFlag.Name),
		FCUCacheSize:            c.Int(FCUCacheSizeFlag.Name),
		PayloadBuilderCacheSize: c.Int(PayloadBuilderCacheSizeFlag.Name),
		JustifiedBlockCacheSize: c.Int(JustifiedBlockCacheSizeFlag.Name),
		FinalizedBlockCacheSize: c.Int(FinalizedBlockCacheSizeFlag.Name),

		NewPayloadWait:       time.Duration(c.Int(NewPayloadWaitMillisFlag.Name)) * time.Millisecond,
		NewPayloadWaitCutoff: uint64(c.Int(NewPayloadWaitCutoffFlag.Name)),
		FCUWait:              time.Duration(c.Int(FCUWaitMillisFlag.Name)) * time.Millisecond,

		PayloadBuilderExtraData: c.String(PayloadBuilderExtraDataFlag.Name),

		FCUMatching: c.String(FCUMatchingFlag.Name),
		Network:     c.String(NetworkFlag.Name),

		BodyLimitBytes:        int64(c.Int(BodyLimitMBFlag.Name)) * 1024 * 1024,
		MaxPayloadBodiesBatch: c.Int(MaxPayloadBodiesBatchFlag.Name),

		Verbosity: c.Int(VerbosityFlag.Name),
		LogJSON:   c.Bool(LogJSONFlag.Name),
	}
	return cfg, cfg.validate()
}

// validate enforces the §7 "Fatal" conditions that abort startup: zero
// cache capacities, plus an unknown fcu_matching value. An unreadable
// secrets file and malformed hex secrets are already reported by FromCLI
// before validate runs.
func (c *Config) validate() error {
	if c.NewPayloadCacheSize <= 0 {
		return fmt.Errorf("new_payload_cache_size must be greater than zero")
	}
	if c.FCUCacheSize <= 0 {
		return fmt.Errorf("fcu_cache_size must be greater than zero")
	}
	if c.PayloadBuilderCacheSize <= 0 {
		return fmt.Errorf("payload_builder_cache_size must be greater than zero")
	}
	if c.JustifiedBlockCacheSize <= 0 || c.FinalizedBlockCacheSize <= 0 {
		return fmt.Errorf("justified_block_cache_size and finalized_block_cache_size must be greater than zero")
	}
	switch c.FCUMatching {
	case "exact", "loose", "head_only":
	default:
		return fmt.Errorf("fcu_matching must be one of exact, loose, head_only, got %q", c.FCUMatching)
	}
	return nil
}

func decodeHexSecret(s string) ([]byte, error) {
	trimmed := s
	if len(trimmed) >= 2 && trimmed[:2] == "0x" {
		trimmed = trimmed[2:]
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex secret: %w", err)
	}
	return b, nil
}
