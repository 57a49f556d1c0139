package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRPCURL          = "https://polygon-bor-rpc.publicnode.com"
	DefaultContractAddress = "0x1eA03296FbA1006754014140caFA3807B6B21FC2"
	DefaultScaleFactor     = "1000000"
	DefaultBalanceMethod   = "balanceOf"
	DefaultInputPath       = "address-with-mpxr.json"
	DefaultOutputPath      = "balances.json"

	EnvRPCURL          = "BALANCERECON_RPC_URL"
	EnvContractAddress = "BALANCERECON_CONTRACT_ADDRESS"
)

type Config struct {
	RPCURL          string
	ContractAddress string
	// ScaleFactor divides raw token units, e.g. 10^decimals of the token.
	ScaleFactor   decimal.Decimal
	ABIPath       string
	BalanceMethod string
	InputPath     string
	OutputPath    string
	// JournalDir enables the WAL journal of merged records when set.
	JournalDir string
	// RPCTimeout bounds a single balance call, zero means no bound.
	RPCTimeout time.Duration
}

type ConfigTmp struct {
	RPCURL          string        `yaml:"rpc_url,omitempty"`
	ContractAddress string        `yaml:"contract_address,omitempty"`
	ScaleFactor     string        `yaml:"scale_factor,omitempty"`
	ABIPath         string        `yaml:"abi_path,omitempty"`
	BalanceMethod   string        `yaml:"balance_method,omitempty"`
	InputPath       string        `yaml:"input_path,omitempty"`
	OutputPath      string        `yaml:"output_path,omitempty"`
	JournalDir      string        `yaml:"journal_dir,omitempty"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout,omitempty"`
}

// Get loads config from the yaml file at path; an empty path uses defaults only.
// Environment variables override rpc_url and contract_address.
func Get(path string) (Config, error) {
	var tmp ConfigTmp
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return Config{}, errors.Wrapf(err, "parse yaml config %s", path)
		}
	}

	if v := os.Getenv(EnvRPCURL); v != "" {
		tmp.RPCURL = v
	}
	if v := os.Getenv(EnvContractAddress); v != "" {
		tmp.ContractAddress = v
	}

	return fromTmp(tmp)
}

func fromTmp(c ConfigTmp) (Config, error) {
	conf := Config{
		RPCURL:          withDefault(c.RPCURL, DefaultRPCURL),
		ContractAddress: withDefault(c.ContractAddress, DefaultContractAddress),
		ABIPath:         c.ABIPath,
		BalanceMethod:   withDefault(c.BalanceMethod, DefaultBalanceMethod),
		InputPath:       withDefault(c.InputPath, DefaultInputPath),
		OutputPath:      withDefault(c.OutputPath, DefaultOutputPath),
		JournalDir:      c.JournalDir,
		RPCTimeout:      c.RPCTimeout,
	}

	scale, err := decimal.NewFromString(withDefault(c.ScaleFactor, DefaultScaleFactor))
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'scale_factor' param in yaml config (must be a decimal), error: %w", err)
	}
	if !scale.IsPositive() {
		return Config{}, fmt.Errorf("incorrect 'scale_factor' param in yaml config (must be positive): %s", scale.String())
	}
	conf.ScaleFactor = scale

	if !common.IsHexAddress(conf.ContractAddress) {
		return Config{}, fmt.Errorf("incorrect 'contract_address' param in yaml config: %s", conf.ContractAddress)
	}
	if conf.RPCTimeout < 0 {
		return Config{}, fmt.Errorf("incorrect 'rpc_timeout' param in yaml config (must not be negative): %s", conf.RPCTimeout)
	}

	return conf, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
