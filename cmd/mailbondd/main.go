package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"mailbond/config"
	"mailbond/ledger"
	"mailbond/native/rewards"
	"mailbond/observability/logging"
	"mailbond/rpc"
	staterewards "mailbond/state/rewards"
	"mailbond/storage"
)

const envVar = "MAILBOND_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	logger := logging.Setup("mailbondd", os.Getenv(envVar), slog.LevelInfo)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "path", *configFile, "error", err)
		os.Exit(1)
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("invalid owner address", "error", err)
		os.Exit(1)
	}
	vault, err := cfg.VaultAddress()
	if err != nil {
		logger.Error("invalid vault address", "error", err)
		os.Exit(1)
	}
	params, err := cfg.RewardParams()
	if err != nil {
		logger.Error("invalid reward policy", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "rewards"))
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bank, err := ledger.NewBank(db, vault)
	if err != nil {
		logger.Error("failed to initialise ledger", "error", err)
		os.Exit(1)
	}

	store := staterewards.NewStore(db)
	store.SetLogger(logger)

	engine := rewards.NewEngine()
	engine.SetState(store)
	engine.SetLedger(bank)
	engine.SetOwner(owner)
	engine.SetDomain(cfg.Domain())
	if err := engine.SetParams(params); err != nil {
		logger.Error("failed to apply reward policy", "error", err)
		os.Exit(1)
	}

	logger.Info("mailbondd starting",
		"network", cfg.NetworkName,
		"chainId", cfg.ChainID,
		"listen", cfg.ListenAddress,
	)

	server := rpc.NewServer(engine, logger)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
