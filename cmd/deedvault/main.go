package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"deedvault/cmd/internal/passphrase"
	"deedvault/config"
	"deedvault/core"
	"deedvault/crypto"
	"deedvault/observability/logging"
	"deedvault/rpc"
	"deedvault/storage"
)

const operatorPassEnv = "DEEDVAULT_OPERATOR_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DEEDVAULT_ENV"))
	logger := logging.Setup("deedvault", env, "")

	passSource := passphrase.NewSource(operatorPassEnv)

	cfg, err := config.Load(*configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.LogFile != "" {
		logger = logging.Setup("deedvault", env, cfg.LogFile)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err), slog.String("path", cfg.DataDir))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.OperatorKeystorePath != "" {
		key, err := loadOperatorKey(cfg.OperatorKeystorePath, passSource.Get)
		if err != nil {
			logger.Error("Failed to load operator key", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Operator key loaded", slog.String("address", key.PubKey().Address().String()))
	}

	roles, err := resolveRoles(cfg)
	if err != nil {
		logger.Error("Invalid role configuration", slog.Any("error", err))
		os.Exit(1)
	}

	node := core.NewNode(db, roles, cfg.PausedModules)

	accounts, deeds, err := genesisFromConfig(cfg)
	if err != nil {
		logger.Error("Invalid genesis configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := node.ApplyGenesis(accounts, deeds); err != nil {
		logger.Error("Failed to apply genesis", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Starting JSON-RPC server",
		slog.String("address", cfg.RPCAddress),
		slog.String("network", cfg.NetworkName),
	)
	server := rpc.NewServer(node)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadOperatorKey(path string, pass func() (string, error)) (*crypto.PrivateKey, error) {
	passphraseValue, err := pass()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, passphraseValue)
}

func resolveRoles(cfg *config.Config) (core.Roles, error) {
	seller, lender, inspector, err := cfg.RoleAddresses()
	if err != nil {
		return core.Roles{}, err
	}
	var roles core.Roles
	copy(roles.Seller[:], seller.Bytes())
	copy(roles.Lender[:], lender.Bytes())
	copy(roles.Inspector[:], inspector.Bytes())
	return roles, nil
}

func genesisFromConfig(cfg *config.Config) ([]core.GenesisAccount, []core.GenesisDeed, error) {
	accounts := make([]core.GenesisAccount, 0, len(cfg.Genesis.Alloc))
	for i, alloc := range cfg.Genesis.Alloc {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return nil, nil, fmt.Errorf("genesis alloc[%d]: %w", i, err)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Balance), 10)
		if !ok || balance.Sign() < 0 {
			return nil, nil, fmt.Errorf("genesis alloc[%d]: invalid balance %q", i, alloc.Balance)
		}
		account := core.GenesisAccount{Balance: balance}
		copy(account.Address[:], addr.Bytes())
		accounts = append(accounts, account)
	}

	deeds := make([]core.GenesisDeed, 0, len(cfg.Genesis.Deeds))
	for i, entry := range cfg.Genesis.Deeds {
		owner, err := crypto.DecodeAddress(strings.TrimSpace(entry.Owner))
		if err != nil {
			return nil, nil, fmt.Errorf("genesis deeds[%d]: %w", i, err)
		}
		deedEntry := core.GenesisDeed{URI: strings.TrimSpace(entry.URI)}
		copy(deedEntry.Owner[:], owner.Bytes())
		deeds = append(deeds, deedEntry)
	}
	return accounts, deeds, nil
}
