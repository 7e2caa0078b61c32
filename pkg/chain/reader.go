// Package chain reads balances, ownership and social-graph state from EVM
// compatible networks. It is the only package that talks JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/lockgate/lockgate/pkg/gaterr"
)

// ErrNoContract is returned when a call hits an address without code.
var ErrNoContract = errors.New("no contract at address")

// ErrReverted is returned when the EVM executed a call and it reverted.
// A revert is a definite answer from the chain, not an outage.
var ErrReverted = errors.New("execution reverted")

// revertErrorCode is the JSON-RPC error code nodes use for reverted calls.
const revertErrorCode = 3

func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// Reader is the set of read primitives the verifiers consume.
type Reader interface {
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	ERC1155BalanceOf(ctx context.Context, token, owner common.Address, id *big.Int) (*big.Int, error)
	TokenOwnerOf(ctx context.Context, token common.Address, tokenID [32]byte) (common.Address, error)
	FollowerCount(ctx context.Context, registry, account common.Address) (*big.Int, error)
	IsFollowing(ctx context.Context, registry, follower, account common.Address) (bool, error)
	ReverseName(ctx context.Context, account common.Address) (string, error)
	IsValidSignature(ctx context.Context, contract common.Address, hash common.Hash, signature []byte) (bool, error)
}

// Backend is the subset of ethclient.Client the reader uses.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Config configures an EthReader.
type Config struct {
	// Name labels provider errors and logs (e.g. "ethereum", "lukso").
	Name string
	// RPCURL is the JSON-RPC endpoint used by Dial.
	RPCURL string
	// CallTimeout bounds each individual RPC call. Zero means no bound
	// beyond the caller's context.
	CallTimeout time.Duration
	// ENSRegistry enables reverse name lookups when non-zero.
	ENSRegistry common.Address
}

// EthReader implements Reader over a JSON-RPC backend.
type EthReader struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
}

// NewEthReader wraps backend.
func NewEthReader(backend Backend, cfg Config, logger *slog.Logger) *EthReader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "rpc"
	}
	return &EthReader{backend: backend, cfg: cfg, logger: logger.With("chain", cfg.Name)}
}

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*EthReader, func(), error) {
	if cfg.RPCURL == "" {
		return nil, nil, fmt.Errorf("%s: rpc url is required", cfg.Name)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s rpc: %w", cfg.Name, err)
	}
	return NewEthReader(client, cfg, logger), client.Close, nil
}

func (r *EthReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.CallTimeout)
	}
	return ctx, func() {}
}

func (r *EthReader) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		r.logger.Debug("contract call failed", "contract", contract.Hex(), "method", method, "error", err)
		if isRevert(err) {
			return nil, fmt.Errorf("%s on %s: %w: %v", method, contract.Hex(), ErrReverted, err)
		}
		return nil, gaterr.Provider(r.cfg.Name, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", method, contract.Hex(), ErrNoContract)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

// NativeBalance returns the account's balance in wei.
func (r *EthReader) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	bal, err := r.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, gaterr.Provider(r.cfg.Name, "balance", err)
	}
	return bal, nil
}

// BalanceOf calls balanceOf(owner) on an ERC20, ERC721, LSP7 or LSP8 contract.
func (r *EthReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	values, err := r.call(ctx, token, TokenABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(values[0], new(big.Int)).(*big.Int), nil
}

// ERC1155BalanceOf calls balanceOf(owner, id) on an ERC1155 contract.
func (r *EthReader) ERC1155BalanceOf(ctx context.Context, token, owner common.Address, id *big.Int) (*big.Int, error) {
	values, err := r.call(ctx, token, ERC1155ABI, "balanceOf", owner, id)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(values[0], new(big.Int)).(*big.Int), nil
}

// TokenOwnerOf returns the owner of an LSP8 token id.
func (r *EthReader) TokenOwnerOf(ctx context.Context, token common.Address, tokenID [32]byte) (common.Address, error) {
	values, err := r.call(ctx, token, LSP8ABI, "tokenOwnerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

// FollowerCount returns how many profiles follow account in an LSP26 registry.
func (r *EthReader) FollowerCount(ctx context.Context, registry, account common.Address) (*big.Int, error) {
	values, err := r.call(ctx, registry, LSP26ABI, "followerCount", account)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(values[0], new(big.Int)).(*big.Int), nil
}

// IsFollowing reports whether follower follows account in an LSP26 registry.
func (r *EthReader) IsFollowing(ctx context.Context, registry, follower, account common.Address) (bool, error) {
	values, err := r.call(ctx, registry, LSP26ABI, "isFollowing", follower, account)
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

// IsValidSignature asks contract whether signature is valid for hash
// (ERC-1271). An address without code, or a contract that reverts, is
// reported as not valid.
func (r *EthReader) IsValidSignature(ctx context.Context, contract common.Address, hash common.Hash, signature []byte) (bool, error) {
	values, err := r.call(ctx, contract, ERC1271ABI, "isValidSignature", [32]byte(hash), signature)
	if err != nil {
		if errors.Is(err, ErrNoContract) || errors.Is(err, ErrReverted) {
			return false, nil
		}
		return false, err
	}
	magic := values[0].([4]byte)
	return magic == ERC1271MagicValue, nil
}
