package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Fingerprint returns the BLAKE3 hash of the file the config was loaded from,
// or "" when the config came from defaults and environment only. It is logged
// at startup and printed by `config check` so deployments can be compared.
func (c *Config) Fingerprint() (string, error) {
	if c.SourceFile == "" {
		return "", nil
	}
	return ComputeBlake3Hash(c.SourceFile)
}
