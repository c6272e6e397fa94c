package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deedvault/crypto"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration. The seller, lender and inspector role
// addresses are fixed here for the lifetime of the escrow instance.
type Config struct {
	RPCAddress           string   `toml:"RPCAddress"`
	DataDir              string   `toml:"DataDir"`
	NetworkName          string   `toml:"NetworkName"`
	LogFile              string   `toml:"LogFile"`
	OperatorKeystorePath string   `toml:"OperatorKeystorePath"`
	PausedModules        []string `toml:"PausedModules"`

	Roles   Roles   `toml:"roles"`
	Genesis Genesis `toml:"genesis"`
}

// Roles names the fixed parties of the escrow instance as bech32 addresses.
type Roles struct {
	Seller    string `toml:"Seller"`
	Lender    string `toml:"Lender"`
	Inspector string `toml:"Inspector"`
}

// Genesis describes the one-time bootstrap applied to an empty data
// directory: funded accounts and deeds minted to the seller.
type Genesis struct {
	Alloc []GenesisAccount `toml:"alloc"`
	Deeds []GenesisDeed    `toml:"deeds"`
}

// GenesisAccount funds one address with a decimal balance in the smallest
// currency unit.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// GenesisDeed mints one property deed at bootstrap.
type GenesisDeed struct {
	Owner string `toml:"Owner"`
	URI   string `toml:"URI"`
}

type loadOptions struct {
	passphrase func() (string, error)
}

// Option customises Load behaviour.
type Option func(*loadOptions)

// WithKeystorePassphraseSource supplies the passphrase used when Load has to
// generate the operator keystore for a fresh configuration.
func WithKeystorePassphraseSource(source func() (string, error)) Option {
	return func(o *loadOptions) {
		o.passphrase = source
	}
}

// Load loads the configuration from the given path, creating a commented
// default (and an operator keystore) when no file exists yet.
func Load(path string, opts ...Option) (*Config, error) {
	options := &loadOptions{passphrase: func() (string, error) { return "", nil }}
	for _, opt := range opts {
		opt(options)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "deedvault-local"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file. A fresh
// operator key is generated and used for every role, which is only suitable
// for local single-operator development.
func createDefault(path string, options *loadOptions) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	passphrase, err := options.passphrase()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}

	operator := key.PubKey().Address().String()
	cfg := &Config{
		RPCAddress:           ":8545",
		DataDir:              "./deedvault-data",
		NetworkName:          "deedvault-local",
		OperatorKeystorePath: keystorePath,
		PausedModules:        []string{},
		Roles: Roles{
			Seller:    operator,
			Lender:    operator,
			Inspector: operator,
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	return filepath.Join(dir, "operator.keystore.json")
}

// RoleAddresses decodes the configured role addresses.
func (c *Config) RoleAddresses() (seller, lender, inspector crypto.Address, err error) {
	seller, err = crypto.DecodeAddress(strings.TrimSpace(c.Roles.Seller))
	if err != nil {
		return seller, lender, inspector, fmt.Errorf("roles: invalid seller address: %w", err)
	}
	lender, err = crypto.DecodeAddress(strings.TrimSpace(c.Roles.Lender))
	if err != nil {
		return seller, lender, inspector, fmt.Errorf("roles: invalid lender address: %w", err)
	}
	inspector, err = crypto.DecodeAddress(strings.TrimSpace(c.Roles.Inspector))
	if err != nil {
		return seller, lender, inspector, fmt.Errorf("roles: invalid inspector address: %w", err)
	}
	return seller, lender, inspector, nil
}
