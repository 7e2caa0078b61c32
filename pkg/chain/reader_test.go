package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockgate/lockgate/pkg/gaterr"
)

// fakeBackend answers contract calls by decoding the selector against a
// set of ABIs and delegating to handlers keyed by "address/method".
type fakeBackend struct {
	abis     []abi.ABI
	handlers map[string]func(args []any) []any
	balances map[common.Address]*big.Int
	err      error
	calls    atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		abis:     []abi.ABI{TokenABI, ERC1155ABI, LSP8ABI, LSP26ABI, ENSRegistryABI, ENSResolverABI, ERC1271ABI},
		handlers: make(map[string]func([]any) []any),
		balances: make(map[common.Address]*big.Int),
	}
}

func (f *fakeBackend) on(contract common.Address, method string, h func(args []any) []any) {
	f.handlers[contract.Hex()+"/"+method] = h
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	for _, parsed := range f.abis {
		m, err := parsed.MethodById(call.Data[:4])
		if err != nil {
			continue
		}
		h, ok := f.handlers[call.To.Hex()+"/"+m.Name]
		if !ok {
			continue
		}
		args, err := m.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(h(args)...)
	}
	return nil, nil
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.balances[account]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	token = common.HexToAddress("0x0000000000000000000000000000000000007070")
)

func TestEthReaderBalances(t *testing.T) {
	fb := newFakeBackend()
	fb.balances[alice] = big.NewInt(42)
	fb.on(token, "balanceOf", func(args []any) []any {
		if args[0].(common.Address) == alice {
			return []any{big.NewInt(7)}
		}
		return []any{big.NewInt(0)}
	})
	r := NewEthReader(fb, Config{Name: "test"}, nil)
	ctx := context.Background()

	bal, err := r.NativeBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal.Int64())

	n, err := r.BalanceOf(ctx, token, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.Int64())

	n, err = r.BalanceOf(ctx, token, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n.Int64())
}

func TestEthReaderNoContract(t *testing.T) {
	r := NewEthReader(newFakeBackend(), Config{}, nil)
	_, err := r.BalanceOf(context.Background(), token, alice)
	assert.ErrorIs(t, err, ErrNoContract)
	assert.False(t, gaterr.IsProvider(err))

	ok, err := r.IsValidSignature(context.Background(), alice, common.Hash{1}, []byte{1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEthReaderProviderError(t *testing.T) {
	fb := newFakeBackend()
	fb.err = errors.New("connection refused")
	r := NewEthReader(fb, Config{Name: "lukso"}, nil)

	_, err := r.BalanceOf(context.Background(), token, alice)
	assert.True(t, gaterr.IsProvider(err))
	_, err = r.NativeBalance(context.Background(), alice)
	assert.True(t, gaterr.IsProvider(err))
}

// revertError mimics the JSON-RPC error a node returns for a reverted call.
type revertError struct{ msg string }

func (e revertError) Error() string  { return e.msg }
func (e revertError) ErrorCode() int { return 3 }

func TestEthReaderRevertIsNotProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rpc error code", revertError{msg: "LSP8NonExistentTokenId"}},
		{"message", errors.New("execution reverted: LSP8NonExistentTokenId")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.err = tt.err
			r := NewEthReader(fb, Config{Name: "lukso"}, nil)

			_, err := r.TokenOwnerOf(context.Background(), token, [32]byte{7})
			assert.ErrorIs(t, err, ErrReverted)
			assert.False(t, gaterr.IsProvider(err))
			assert.NotEqual(t, gaterr.CodeProvider, gaterr.Code(err))

			ok, err := r.IsValidSignature(context.Background(), alice, common.Hash{1}, []byte{1})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestEthReaderERC1155AndLSP8(t *testing.T) {
	fb := newFakeBackend()
	fb.on(token, "balanceOf", func(args []any) []any {
		if len(args) == 2 && args[1].(*big.Int).Int64() == 5 {
			return []any{big.NewInt(3)}
		}
		return []any{big.NewInt(0)}
	})
	var tokenID [32]byte
	tokenID[31] = 9
	fb.on(token, "tokenOwnerOf", func(args []any) []any {
		if args[0].([32]byte) == tokenID {
			return []any{alice}
		}
		return []any{common.Address{}}
	})
	r := NewEthReader(fb, Config{}, nil)

	n, err := r.ERC1155BalanceOf(context.Background(), token, alice, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.Int64())

	owner, err := r.TokenOwnerOf(context.Background(), token, tokenID)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
}

func TestEthReaderLSP26(t *testing.T) {
	registry := common.HexToAddress("0x0000000000000000000000000000000000002626")
	fb := newFakeBackend()
	fb.on(registry, "followerCount", func(args []any) []any { return []any{big.NewInt(12)} })
	fb.on(registry, "isFollowing", func(args []any) []any {
		return []any{args[0].(common.Address) == bob && args[1].(common.Address) == alice}
	})
	r := NewEthReader(fb, Config{}, nil)

	n, err := r.FollowerCount(context.Background(), registry, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n.Int64())

	following, err := r.IsFollowing(context.Background(), registry, bob, alice)
	require.NoError(t, err)
	assert.True(t, following)
	following, err = r.IsFollowing(context.Background(), registry, alice, bob)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestEthReaderIsValidSignature(t *testing.T) {
	profile := common.HexToAddress("0x0000000000000000000000000000000000000f0f")
	good := common.Hash{0xaa}
	fb := newFakeBackend()
	fb.on(profile, "isValidSignature", func(args []any) []any {
		if args[0].([32]byte) == good {
			return []any{ERC1271MagicValue}
		}
		return []any{[4]byte{0xff, 0xff, 0xff, 0xff}}
	})
	r := NewEthReader(fb, Config{}, nil)

	ok, err := r.IsValidSignature(context.Background(), profile, good, []byte{1, 2})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.IsValidSignature(context.Background(), profile, common.Hash{0xbb}, []byte{1, 2})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNameHash(t *testing.T) {
	assert.Equal(t, common.Hash{}, NameHash(""))
	assert.Equal(t,
		common.HexToHash("0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae"),
		NameHash("eth"))
	assert.Equal(t,
		common.HexToHash("0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f"),
		NameHash("foo.eth"))
}

func TestReverseName(t *testing.T) {
	registry := MainnetENSRegistry
	resolver := common.HexToAddress("0x0000000000000000000000000000000000000e45")
	fb := newFakeBackend()
	fb.on(registry, "resolver", func(args []any) []any { return []any{resolver} })
	fb.on(resolver, "name", func(args []any) []any {
		if args[0].([32]byte) == [32]byte(ReverseNode(alice)) {
			return []any{"alice.eth"}
		}
		return []any{"bob.eth"}
	})
	fb.on(resolver, "addr", func(args []any) []any {
		if args[0].([32]byte) == [32]byte(NameHash("alice.eth")) {
			return []any{alice}
		}
		return []any{common.Address{}}
	})
	r := NewEthReader(fb, Config{ENSRegistry: registry}, nil)

	name, err := r.ReverseName(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "alice.eth", name)

	// bob's reverse record claims a name that does not resolve back.
	name, err = r.ReverseName(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, "", name)

	disabled := NewEthReader(fb, Config{}, nil)
	name, err = disabled.ReverseName(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "", name)
}

func TestCachedReaderMemoizesSuccessOnly(t *testing.T) {
	fb := newFakeBackend()
	fb.on(token, "balanceOf", func(args []any) []any { return []any{big.NewInt(5)} })
	cached := NewCachedReader(NewEthReader(fb, Config{}, nil), 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := cached.BalanceOf(ctx, token, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n.Int64())
		n.SetInt64(0) // callers cannot corrupt the memo
	}
	assert.Equal(t, int32(1), fb.calls.Load())

	fb.err = errors.New("timeout")
	for i := 0; i < 2; i++ {
		_, err := cached.NativeBalance(ctx, bob)
		assert.True(t, gaterr.IsProvider(err))
	}
	assert.Equal(t, int32(3), fb.calls.Load())

	fb.err = nil
	cached.Flush()
	_, err := cached.BalanceOf(ctx, token, alice)
	require.NoError(t, err)
	assert.Equal(t, int32(4), fb.calls.Load())
}
