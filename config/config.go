package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"mailbond/crypto"
	"mailbond/native/rewards"
)

// Config carries the service configuration loaded from TOML.
type Config struct {
	ListenAddress      string `toml:"ListenAddress"`
	DataDir            string `toml:"DataDir"`
	NetworkName        string `toml:"NetworkName"`
	Environment        string `toml:"Environment"`
	ChainID            uint64 `toml:"ChainID"`
	Owner              string `toml:"Owner"`
	FeeCollector       string `toml:"FeeCollector"`
	Vault              string `toml:"Vault"`
	MinRewardAmount    string `toml:"MinRewardAmount"`
	MaxExpirySeconds   int64  `toml:"MaxExpirySeconds"`
	ProtocolFeeBps     uint32 `toml:"ProtocolFeeBps"`
	CancellationFeeBps uint32 `toml:"CancellationFeeBps"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("config: create directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: write default: %w", err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./mailbond-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "mailbond-local"
	}
	if c.ChainID == 0 {
		c.ChainID = 1
	}
	if strings.TrimSpace(c.MinRewardAmount) == "" {
		c.MinRewardAmount = "1"
	}
	if c.MaxExpirySeconds == 0 {
		c.MaxExpirySeconds = 30 * 24 * 3_600
	}
	if c.ProtocolFeeBps == 0 {
		c.ProtocolFeeBps = 50
	}
	if c.CancellationFeeBps == 0 {
		c.CancellationFeeBps = 100
	}
}

// Domain returns the signing domain bound to this deployment.
func (c *Config) Domain() crypto.Domain {
	return crypto.Domain{Name: "mailbond", Version: "1", ChainID: c.ChainID}
}

// RewardParams converts the configured policy into engine params.
func (c *Config) RewardParams() (rewards.Params, error) {
	params := rewards.DefaultParams()
	minAmount, ok := new(big.Int).SetString(strings.TrimSpace(c.MinRewardAmount), 10)
	if !ok || minAmount.Sign() <= 0 {
		return rewards.Params{}, fmt.Errorf("config: invalid MinRewardAmount %q", c.MinRewardAmount)
	}
	params.MinRewardAmount = minAmount
	params.MaxExpirySeconds = c.MaxExpirySeconds
	params.ProtocolFeeBps = c.ProtocolFeeBps
	params.CancellationFeeBps = c.CancellationFeeBps
	if strings.TrimSpace(c.FeeCollector) != "" {
		collector, err := parseAddress(c.FeeCollector)
		if err != nil {
			return rewards.Params{}, fmt.Errorf("config: FeeCollector: %w", err)
		}
		params.FeeCollector = collector
	}
	if err := params.Validate(); err != nil {
		return rewards.Params{}, err
	}
	return params, nil
}

// OwnerAddress decodes the privileged administrative account.
func (c *Config) OwnerAddress() ([20]byte, error) {
	if strings.TrimSpace(c.Owner) == "" {
		return [20]byte{}, fmt.Errorf("config: Owner address required")
	}
	return parseAddress(c.Owner)
}

// VaultAddress decodes the escrow vault account.
func (c *Config) VaultAddress() ([20]byte, error) {
	if strings.TrimSpace(c.Vault) == "" {
		return [20]byte{}, fmt.Errorf("config: Vault address required")
	}
	return parseAddress(c.Vault)
}

func parseAddress(value string) ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], decoded.Bytes())
	return out, nil
}
