// Package chaintest provides an in-memory chain.Reader for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lockgate/lockgate/pkg/chain"
	"github.com/lockgate/lockgate/pkg/gaterr"
)

// Reader is a programmable chain.Reader. Unset balances read as zero.
type Reader struct {
	mu         sync.Mutex
	native     map[common.Address]*big.Int
	tokens     map[string]*big.Int
	erc1155    map[string]*big.Int
	owners     map[string]common.Address
	followers  map[common.Address]int64
	following  map[string]bool
	names      map[common.Address]string
	signatures map[common.Address]map[common.Hash]bool
	failing    map[string]bool
	reverting  map[string]bool
	failAll    bool
}

var _ chain.Reader = (*Reader)(nil)

// New returns an empty Reader.
func New() *Reader {
	return &Reader{
		native:     make(map[common.Address]*big.Int),
		tokens:     make(map[string]*big.Int),
		erc1155:    make(map[string]*big.Int),
		owners:     make(map[string]common.Address),
		followers:  make(map[common.Address]int64),
		following:  make(map[string]bool),
		names:      make(map[common.Address]string),
		signatures: make(map[common.Address]map[common.Hash]bool),
		failing:    make(map[string]bool),
		reverting:  make(map[string]bool),
	}
}

func (r *Reader) SetNative(account common.Address, wei *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.native[account] = wei
}

func (r *Reader) SetBalance(token, owner common.Address, n *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.Hex()+owner.Hex()] = n
}

func (r *Reader) SetERC1155(token, owner common.Address, id, n *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.erc1155[token.Hex()+owner.Hex()+id.String()] = n
}

func (r *Reader) SetOwner(token common.Address, tokenID [32]byte, owner common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[token.Hex()+common.Hash(tokenID).Hex()] = owner
}

func (r *Reader) SetFollowerCount(account common.Address, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followers[account] = n
}

func (r *Reader) SetFollowing(follower, account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.following[follower.Hex()+account.Hex()] = true
}

func (r *Reader) SetName(account common.Address, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[account] = name
}

// AcceptSignature makes contract report hash as validly signed.
func (r *Reader) AcceptSignature(contract common.Address, hash common.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signatures[contract] == nil {
		r.signatures[contract] = make(map[common.Hash]bool)
	}
	r.signatures[contract][hash] = true
}

// Fail makes every call of op return a provider error. An empty op fails
// every call.
func (r *Reader) Fail(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if op == "" {
		r.failAll = true
		return
	}
	r.failing[op] = true
}

// Revert makes every call of op fail as a reverted contract call.
func (r *Reader) Revert(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reverting[op] = true
}

// Recover clears all injected failures.
func (r *Reader) Recover() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = false
	r.failing = make(map[string]bool)
	r.reverting = make(map[string]bool)
}

func (r *Reader) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return gaterr.Provider("chaintest", op, err)
	}
	if r.failAll || r.failing[op] {
		return gaterr.Provider("chaintest", op, fmt.Errorf("injected failure"))
	}
	if r.reverting[op] {
		return fmt.Errorf("%s: %w", op, chain.ErrReverted)
	}
	return nil
}

func zeroIfNil(n *big.Int) *big.Int {
	if n == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(n)
}

func (r *Reader) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "balance"); err != nil {
		return nil, err
	}
	return zeroIfNil(r.native[account]), nil
}

func (r *Reader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "balanceOf"); err != nil {
		return nil, err
	}
	return zeroIfNil(r.tokens[token.Hex()+owner.Hex()]), nil
}

func (r *Reader) ERC1155BalanceOf(ctx context.Context, token, owner common.Address, id *big.Int) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "balanceOf1155"); err != nil {
		return nil, err
	}
	return zeroIfNil(r.erc1155[token.Hex()+owner.Hex()+id.String()]), nil
}

func (r *Reader) TokenOwnerOf(ctx context.Context, token common.Address, tokenID [32]byte) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "tokenOwnerOf"); err != nil {
		return common.Address{}, err
	}
	return r.owners[token.Hex()+common.Hash(tokenID).Hex()], nil
}

func (r *Reader) FollowerCount(ctx context.Context, _ common.Address, account common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "followerCount"); err != nil {
		return nil, err
	}
	return big.NewInt(r.followers[account]), nil
}

func (r *Reader) IsFollowing(ctx context.Context, _ common.Address, follower, account common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "isFollowing"); err != nil {
		return false, err
	}
	return r.following[follower.Hex()+account.Hex()], nil
}

func (r *Reader) ReverseName(ctx context.Context, account common.Address) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "name"); err != nil {
		return "", err
	}
	return r.names[account], nil
}

func (r *Reader) IsValidSignature(ctx context.Context, contract common.Address, hash common.Hash, _ []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "isValidSignature"); err != nil {
		return false, err
	}
	return r.signatures[contract][hash], nil
}
