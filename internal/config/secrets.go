package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// secretsFile is the on-disk shape of the client-secrets file: a single
// [secrets] table mapping key_id to a hex-encoded 32-byte secret.
type secretsFile struct {
	Secrets map[string]string `toml:"secrets"`
}

// LoadClientSecrets decodes the TOML client-secrets file. An empty path is
// valid and yields no client secrets — a deployment with only a controller
// is legitimate. A present-but-unreadable or malformed file is Fatal.
func LoadClientSecrets(path string) (map[string][]byte, error) {
	if path == "" {
		return map[string][]byte{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client secrets file: %w", err)
	}
	var parsed secretsFile
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse client secrets file: %w", err)
	}
	out := make(map[string][]byte, len(parsed.Secrets))
	for id, hexSecret := range parsed.Secrets {
		trimmed := hexSecret
		if len(trimmed) >= 2 && trimmed[:2] == "0x" {
			trimmed = trimmed[2:]
		}
		b, err := hex.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("client secret %q: invalid hex: %w", id, err)
		}
		out[id] = b
	}
	return out, nil
}
