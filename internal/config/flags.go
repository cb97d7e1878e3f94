package config

import "github.com/urfave/cli/v2"

// Flags, grouped and defaulted the way cmd/geth's utils.*Flag vars are:
// declared once here, consumed by both the cli.App in cmd/enginemux and by
// FromCLI above.
var (
	ListenAddressFlag = &cli.StringFlag{Name: "listen-address", Usage: "HTTP listen address", Value: "127.0.0.1"}
	ListenPortFlag    = &cli.IntFlag{Name: "listen-port", Usage: "HTTP listen port", Value: 8551}

	EngineURLFlag           = &cli.StringFlag{Name: "ee-url", Usage: "primary execution engine Engine API URL", Required: true}
	EngineJWTSecretFlag     = &cli.StringFlag{Name: "ee-jwt-secret", Usage: "hex-encoded 32-byte JWT secret for the primary engine", Required: true}
	EngineTimeoutMillisFlag = &cli.IntFlag{Name: "ee-timeout-millis", Usage: "per-call timeout for outbound primary engine requests", Value: 8000}

	ControllerJWTSecretFlag = &cli.StringFlag{Name: "controller-jwt-secret", Usage: "hex-encoded 32-byte JWT secret for the controlling consensus client", Required: true}
	ClientSecretsFlag       = &cli.StringFlag{Name: "client-jwt-secrets", Usage: "path to the TOML [secrets] file mapping key_id to hex secrets"}

	NewPayloadCacheSizeFlag     = &cli.IntFlag{Name: "new-payload-cache-size", Value: 256}
	FCUCacheSizeFlag            = &cli.IntFlag{Name: "fcu-cache-size", Value: 256}
	PayloadBuilderCacheSizeFlag = &cli.IntFlag{Name: "payload-builder-cache-size", Value: 256}
	JustifiedBlockCacheSizeFlag = &cli.IntFlag{Name: "justified-block-cache-size", Value: 4}
	FinalizedBlockCacheSizeFlag = &cli.IntFlag{Name: "finalized-block-cache-size", Value: 4}

	NewPayloadWaitMillisFlag = &cli.IntFlag{Name: "new-payload-wait-millis", Value: 2000}
	NewPayloadWaitCutoffFlag = &cli.IntFlag{Name: "new-payload-wait-cutoff", Value: 64}
	FCUWaitMillisFlag        = &cli.IntFlag{Name: "fcu-wait-millis", Value: 2000}

	PayloadBuilderExtraDataFlag = &cli.StringFlag{Name: "payload-builder-extra-data", Value: "engine-mux"}

	FCUMatchingFlag = &cli.StringFlag{Name: "fcu-matching", Usage: "exact | loose | head_only", Value: "exact"}
	NetworkFlag     = &cli.StringFlag{Name: "network", Usage: "mainnet | holesky | sepolia", Value: "mainnet"}

	BodyLimitMBFlag           = &cli.IntFlag{Name: "body-limit-mb", Value: 32}
	MaxPayloadBodiesBatchFlag = &cli.IntFlag{Name: "max-payload-bodies-batch", Value: 32}

	VerbosityFlag = &cli.IntFlag{Name: "verbosity", Value: 3}
	LogJSONFlag   = &cli.BoolFlag{Name: "log-json", Value: false}
)

// Flags is the full flag set for the cli.App in cmd/enginemux.
var Flags = []cli.Flag{
	ListenAddressFlag, ListenPortFlag,
	EngineURLFlag, EngineJWTSecretFlag, EngineTimeoutMillisFlag,
	ControllerJWTSecretFlag, ClientSecretsFlag,
	NewPayloadCacheSizeFlag, FCUCacheSizeFlag, PayloadBuilderCacheSizeFlag,
	JustifiedBlockCacheSizeFlag, FinalizedBlockCacheSizeFlag,
	NewPayloadWaitMillisFlag, NewPayloadWaitCutoffFlag, FCUWaitMillisFlag,
	PayloadBuilderExtraDataFlag,
	FCUMatchingFlag, NetworkFlag,
	BodyLimitMBFlag, MaxPayloadBodiesBatchFlag,
	VerbosityFlag, LogJSONFlag,
}
