package config

import (
	"fmt"
	"math/big"
	"strings"

	"deedvault/crypto"
)

// Validate checks the configuration for structural problems before the
// daemon starts. It does not touch the filesystem.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if _, _, _, err := cfg.RoleAddresses(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for i, acc := range cfg.Genesis.Alloc {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(acc.Address)); err != nil {
			return fmt.Errorf("config: genesis alloc[%d]: invalid address: %w", i, err)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(acc.Balance), 10)
		if !ok || balance.Sign() < 0 {
			return fmt.Errorf("config: genesis alloc[%d]: balance must be a non-negative decimal integer", i)
		}
	}
	for i, deed := range cfg.Genesis.Deeds {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(deed.Owner)); err != nil {
			return fmt.Errorf("config: genesis deeds[%d]: invalid owner: %w", i, err)
		}
		if strings.TrimSpace(deed.URI) == "" {
			return fmt.Errorf("config: genesis deeds[%d]: URI must not be empty", i)
		}
	}
	return nil
}
