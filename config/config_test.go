package config

import (
	"os"
	"path/filepath"
	"testing"

	"mailbond/crypto"
)

func TestLoadWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file must be written: %v", err)
	}
	if cfg.ListenAddress != ":8645" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.ChainID != 1 {
		t.Fatalf("unexpected chain id %d", cfg.ChainID)
	}
	if cfg.ProtocolFeeBps != 50 || cfg.CancellationFeeBps != 100 {
		t.Fatalf("unexpected fee defaults %d/%d", cfg.ProtocolFeeBps, cfg.CancellationFeeBps)
	}

	// Reloading parses the file written above.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.NetworkName != cfg.NetworkName {
		t.Fatalf("reload mismatch: %q != %q", again.NetworkName, cfg.NetworkName)
	}
}

func TestRewardParamsValidation(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	params, err := cfg.RewardParams()
	if err != nil {
		t.Fatalf("default params: %v", err)
	}
	if params.MinRewardAmount.Sign() <= 0 {
		t.Fatal("minimum amount must be positive")
	}

	cfg.MinRewardAmount = "not-a-number"
	if _, err := cfg.RewardParams(); err == nil {
		t.Fatal("invalid minimum amount must fail")
	}

	cfg.applyDefaults()
	cfg.MinRewardAmount = "1"
	cfg.ProtocolFeeBps = 501
	if _, err := cfg.RewardParams(); err == nil {
		t.Fatal("protocol fee above cap must fail")
	}
}

func TestAddressParsing(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	encoded := key.PubKey().Address().String()
	raw := key.PubKey().RawAddress()

	cfg := &Config{Owner: encoded, Vault: encoded}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != raw {
		t.Fatal("owner address must round-trip")
	}
	vault, err := cfg.VaultAddress()
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault != raw {
		t.Fatal("vault address must round-trip")
	}

	cfg = &Config{}
	if _, err := cfg.OwnerAddress(); err == nil {
		t.Fatal("missing owner must fail")
	}
}
