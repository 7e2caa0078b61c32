package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs for the read-only calls the verifiers need. LSP7 and LSP8
// share the balanceOf(address) selector with ERC20 and ERC721.
const (
	tokenABIJSON = `[
		{"type":"function","name":"balanceOf","stateMutability":"view",
		 "inputs":[{"name":"owner","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`

	erc1155ABIJSON = `[
		{"type":"function","name":"balanceOf","stateMutability":"view",
		 "inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`

	lsp8ABIJSON = `[
		{"type":"function","name":"tokenOwnerOf","stateMutability":"view",
		 "inputs":[{"name":"tokenId","type":"bytes32"}],
		 "outputs":[{"name":"","type":"address"}]}
	]`

	lsp26ABIJSON = `[
		{"type":"function","name":"followerCount","stateMutability":"view",
		 "inputs":[{"name":"addr","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"isFollowing","stateMutability":"view",
		 "inputs":[{"name":"follower","type":"address"},{"name":"addr","type":"address"}],
		 "outputs":[{"name":"","type":"bool"}]}
	]`

	ensRegistryABIJSON = `[
		{"type":"function","name":"resolver","stateMutability":"view",
		 "inputs":[{"name":"node","type":"bytes32"}],
		 "outputs":[{"name":"","type":"address"}]}
	]`

	ensResolverABIJSON = `[
		{"type":"function","name":"name","stateMutability":"view",
		 "inputs":[{"name":"node","type":"bytes32"}],
		 "outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"addr","stateMutability":"view",
		 "inputs":[{"name":"node","type":"bytes32"}],
		 "outputs":[{"name":"","type":"address"}]}
	]`

	erc1271ABIJSON = `[
		{"type":"function","name":"isValidSignature","stateMutability":"view",
		 "inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
		 "outputs":[{"name":"","type":"bytes4"}]}
	]`
)

var (
	TokenABI       = mustParseABI(tokenABIJSON)
	ERC1155ABI     = mustParseABI(erc1155ABIJSON)
	LSP8ABI        = mustParseABI(lsp8ABIJSON)
	LSP26ABI       = mustParseABI(lsp26ABIJSON)
	ENSRegistryABI = mustParseABI(ensRegistryABIJSON)
	ENSResolverABI = mustParseABI(ensResolverABIJSON)
	ERC1271ABI     = mustParseABI(erc1271ABIJSON)
)

// ERC1271MagicValue is returned by isValidSignature for a valid signature.
var ERC1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
