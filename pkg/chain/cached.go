package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
)

// DefaultReadCacheTTL is how long successful reads are memoized.
const DefaultReadCacheTTL = 30 * time.Second

// CachedReader memoizes successful reads of another Reader for a short
// TTL. Failed reads are never cached. Signature checks are not cached.
type CachedReader struct {
	next  Reader
	cache *cache.Cache
}

// NewCachedReader wraps next. A non-positive ttl uses DefaultReadCacheTTL.
func NewCachedReader(next Reader, ttl time.Duration) *CachedReader {
	if ttl <= 0 {
		ttl = DefaultReadCacheTTL
	}
	return &CachedReader{next: next, cache: cache.New(ttl, ttl*2)}
}

func cachedBig(c *cache.Cache, key string, load func() (*big.Int, error)) (*big.Int, error) {
	if v, ok := c.Get(key); ok {
		if n, ok := v.(*big.Int); ok {
			return new(big.Int).Set(n), nil
		}
	}
	n, err := load()
	if err != nil {
		return nil, err
	}
	c.Set(key, new(big.Int).Set(n), cache.DefaultExpiration)
	return n, nil
}

func (c *CachedReader) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return cachedBig(c.cache, "native:"+account.Hex(), func() (*big.Int, error) {
		return c.next.NativeBalance(ctx, account)
	})
}

func (c *CachedReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return cachedBig(c.cache, "balance:"+token.Hex()+":"+owner.Hex(), func() (*big.Int, error) {
		return c.next.BalanceOf(ctx, token, owner)
	})
}

func (c *CachedReader) ERC1155BalanceOf(ctx context.Context, token, owner common.Address, id *big.Int) (*big.Int, error) {
	key := fmt.Sprintf("erc1155:%s:%s:%s", token.Hex(), owner.Hex(), id.String())
	return cachedBig(c.cache, key, func() (*big.Int, error) {
		return c.next.ERC1155BalanceOf(ctx, token, owner, id)
	})
}

func (c *CachedReader) TokenOwnerOf(ctx context.Context, token common.Address, tokenID [32]byte) (common.Address, error) {
	key := "owner:" + token.Hex() + ":" + common.Hash(tokenID).Hex()
	if v, ok := c.cache.Get(key); ok {
		return v.(common.Address), nil
	}
	owner, err := c.next.TokenOwnerOf(ctx, token, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	c.cache.Set(key, owner, cache.DefaultExpiration)
	return owner, nil
}

func (c *CachedReader) FollowerCount(ctx context.Context, registry, account common.Address) (*big.Int, error) {
	return cachedBig(c.cache, "followers:"+registry.Hex()+":"+account.Hex(), func() (*big.Int, error) {
		return c.next.FollowerCount(ctx, registry, account)
	})
}

func (c *CachedReader) IsFollowing(ctx context.Context, registry, follower, account common.Address) (bool, error) {
	key := "following:" + registry.Hex() + ":" + follower.Hex() + ":" + account.Hex()
	if v, ok := c.cache.Get(key); ok {
		return v.(bool), nil
	}
	following, err := c.next.IsFollowing(ctx, registry, follower, account)
	if err != nil {
		return false, err
	}
	c.cache.Set(key, following, cache.DefaultExpiration)
	return following, nil
}

func (c *CachedReader) ReverseName(ctx context.Context, account common.Address) (string, error) {
	key := "ens:" + account.Hex()
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}
	name, err := c.next.ReverseName(ctx, account)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, name, cache.DefaultExpiration)
	return name, nil
}

func (c *CachedReader) IsValidSignature(ctx context.Context, contract common.Address, hash common.Hash, signature []byte) (bool, error) {
	return c.next.IsValidSignature(ctx, contract, hash, signature)
}

// Flush drops every memoized read.
func (c *CachedReader) Flush() {
	c.cache.Flush()
}
