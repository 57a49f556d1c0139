// Package balance resolves on-chain token balances for chain addresses.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/balancerecon/internal/domain"
)

// DefaultMethod is the ERC20 balance query.
const DefaultMethod = "balanceOf"

// erc20ABI describes only the balanceOf function.
const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	}
]`

// ERC20Source reads raw token balances with eth_call against a single contract.
type ERC20Source struct {
	caller   ethereum.ContractCaller
	contract common.Address
	abi      abi.ABI
	method   string
	timeout  time.Duration
}

// Option configures the ERC20Source.
type Option func(*ERC20Source)

// WithABI replaces the built-in ERC20 ABI.
func WithABI(parsed abi.ABI) Option {
	return func(s *ERC20Source) {
		s.abi = parsed
	}
}

// WithMethod sets the balance query method name.
func WithMethod(name string) Option {
	return func(s *ERC20Source) {
		if name != "" {
			s.method = name
		}
	}
}

// WithTimeout bounds every single eth_call. Zero leaves calls unbounded.
func WithTimeout(d time.Duration) Option {
	return func(s *ERC20Source) {
		s.timeout = d
	}
}

// NewERC20Source creates a balance source for the token at contractAddress.
func NewERC20Source(caller ethereum.ContractCaller, contractAddress string, opts ...Option) (*ERC20Source, error) {
	if caller == nil {
		return nil, errors.New("contract caller is required")
	}
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse ERC20 ABI")
	}

	s := &ERC20Source{
		caller:   caller,
		contract: common.HexToAddress(contractAddress),
		abi:      parsed,
		method:   DefaultMethod,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := validateMethod(s.abi, s.method); err != nil {
		return nil, err
	}

	return s, nil
}

// validateMethod accepts name(address) returning a big unsigned integer first.
func validateMethod(parsed abi.ABI, name string) error {
	method, ok := parsed.Methods[name]
	if !ok {
		return fmt.Errorf("method %q not found in ABI", name)
	}
	if len(method.Inputs) != 1 || method.Inputs[0].Type.T != abi.AddressTy {
		return fmt.Errorf("method %q must take exactly one address argument", name)
	}
	if len(method.Outputs) == 0 {
		return fmt.Errorf("method %q returns nothing", name)
	}
	out := method.Outputs[0].Type
	if (out.T != abi.UintTy && out.T != abi.IntTy) || out.Size <= 64 {
		return fmt.Errorf("method %q must return an integer wider than 64 bits, got %s", name, out.String())
	}

	return nil
}

// BalanceOf returns the raw smallest-unit balance held by address.
func (s *ERC20Source) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, &domain.LookupError{Address: address, Err: errors.New("not a hex address")}
	}

	data, err := s.abi.Pack(s.method, common.HexToAddress(address))
	if err != nil {
		return nil, &domain.LookupError{Address: address, Err: errors.Wrap(err, "pack call")}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: data}, nil)
	if err != nil {
		return nil, &domain.LookupError{Address: address, Err: errors.Wrap(err, "call contract")}
	}

	values, err := s.abi.Unpack(s.method, out)
	if err != nil {
		return nil, &domain.LookupError{Address: address, Err: errors.Wrap(err, "unpack result")}
	}

	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, &domain.LookupError{Address: address, Err: fmt.Errorf("unexpected result type %T", values[0])}
	}

	return balance, nil
}

// LoadABI reads a JSON ABI descriptor from path.
func LoadABI(path string) (abi.ABI, error) {
	f, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "open ABI file")
	}
	defer f.Close()

	parsed, err := abi.JSON(f)
	if err != nil {
		return abi.ABI{}, errors.Wrapf(err, "parse ABI file %s", path)
	}

	return parsed, nil
}
