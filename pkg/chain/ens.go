package chain

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MainnetENSRegistry is the ENS registry on Ethereum mainnet.
var MainnetENSRegistry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

// NameHash computes the ENS namehash of name.
func NameHash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256Hash([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label.Bytes())
	}
	return node
}

// ReverseNode returns the namehash of account's reverse record.
func ReverseNode(account common.Address) common.Hash {
	return NameHash(strings.ToLower(account.Hex()[2:]) + ".addr.reverse")
}

// ReverseName returns the primary ENS name of account, or "" when none is
// set. The name is only returned when it forward-resolves back to account.
func (r *EthReader) ReverseName(ctx context.Context, account common.Address) (string, error) {
	if r.cfg.ENSRegistry == (common.Address{}) {
		return "", nil
	}

	node := ReverseNode(account)
	resolver, err := r.resolverOf(ctx, node)
	if err != nil || resolver == (common.Address{}) {
		return "", err
	}
	values, err := r.call(ctx, resolver, ENSResolverABI, "name", [32]byte(node))
	if err != nil {
		return "", err
	}
	name := values[0].(string)
	if name == "" {
		return "", nil
	}

	forward := NameHash(name)
	fwdResolver, err := r.resolverOf(ctx, forward)
	if err != nil || fwdResolver == (common.Address{}) {
		return "", err
	}
	values, err = r.call(ctx, fwdResolver, ENSResolverABI, "addr", [32]byte(forward))
	if err != nil {
		return "", err
	}
	if values[0].(common.Address) != account {
		r.logger.Debug("ens reverse record does not resolve back", "account", account.Hex(), "name", name)
		return "", nil
	}
	return name, nil
}

func (r *EthReader) resolverOf(ctx context.Context, node common.Hash) (common.Address, error) {
	values, err := r.call(ctx, r.cfg.ENSRegistry, ENSRegistryABI, "resolver", [32]byte(node))
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}
