// Package evm implements the ethereum_profile category: ownership proofs for
// an Ethereum wallet's native balance, tokens, ENS name and EFP social graph.
package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"path"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lockgate/lockgate/pkg/chain"
	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/verifier"
)

// Verifier evaluates ethereum_profile requirements.
type Verifier struct {
	reader chain.Reader
	efp    EFPClient
	logger *slog.Logger
}

var _ verifier.Verifier = (*Verifier)(nil)

// New returns a verifier reading chain state from reader. efp may be nil,
// in which case EFP requirements fail as provider errors.
func New(reader chain.Reader, efp EFPClient, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{reader: reader, efp: efp, logger: logger.With("verifier", Type)}
}

func (v *Verifier) Type() string { return Type }

func (v *Verifier) Metadata() verifier.Metadata {
	return verifier.Metadata{
		Type:        Type,
		Name:        "Ethereum Profile",
		Description: "Prove control of an Ethereum wallet holding ETH, tokens, an ENS name or EFP followers.",
		RequirementKinds: []string{
			"eth_balance", "erc20", "erc721", "erc1155", "ens", "efp",
		},
	}
}

func (v *Verifier) DefaultRequirements() verifier.Requirements { return Requirements{} }

func (v *Verifier) DecodeRequirements(raw json.RawMessage) (verifier.Requirements, error) {
	var req Requirements
	if err := verifier.DecodeStrict(Type, raw, &req); err != nil {
		return nil, err
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (v *Verifier) ValidateRequirements(req verifier.Requirements) error {
	r, ok := asRequirements(req)
	if !ok {
		return gaterr.Configuration("requirements", fmt.Sprintf("expected %s requirements, got %T", Type, req))
	}
	return validate(r)
}

func asRequirements(req verifier.Requirements) (Requirements, bool) {
	switch r := req.(type) {
	case Requirements:
		return r, true
	case *Requirements:
		if r != nil {
			return *r, true
		}
	}
	return Requirements{}, false
}

// Evaluate checks every configured requirement for address and combines
// the outcomes under mode.
func (v *Verifier) Evaluate(ctx context.Context, address common.Address, req verifier.Requirements, mode verifier.Fulfillment) verifier.Result {
	r, ok := asRequirements(req)
	if !ok {
		return verifier.Failed(gaterr.Configuration("requirements", fmt.Sprintf("unexpected type %T", req)))
	}
	if err := validate(r); err != nil {
		return verifier.Failed(err)
	}

	var items []verifier.ItemResult
	if r.MinimumETHBalance != "" {
		items = append(items, v.checkNative(ctx, address, r.MinimumETHBalance))
	}
	for _, t := range r.RequiredERC20Tokens {
		items = append(items, v.checkERC20(ctx, address, t))
	}
	for _, c := range r.RequiredERC721Collections {
		items = append(items, v.checkERC721(ctx, address, c))
	}
	for _, t := range r.RequiredERC1155Tokens {
		items = append(items, v.checkERC1155(ctx, address, t))
	}

	detail := map[string]any{"address": address.Hex()}
	if r.RequiresENS || len(r.ENSDomainPatterns) > 0 {
		item, name := v.checkENS(ctx, address, r.ENSDomainPatterns)
		if name != "" {
			detail["ensName"] = name
		}
		items = append(items, item)
	}
	for _, e := range r.EFPRequirements {
		items = append(items, v.checkEFP(ctx, address, e))
	}

	res := verifier.Combine(Type, mode, items)
	res.Detail = detail
	if res.Err != nil {
		v.logger.Debug("evaluation failed", "address", address.Hex(), "code", gaterr.Code(res.Err), "error", res.Err)
	}
	return res
}

// failure classifies a read error: provider failures stay retryable, any
// other error (e.g. no contract at the address) is a definite miss.
func failure(item verifier.ItemResult, err error) verifier.ItemResult {
	if gaterr.IsProvider(err) {
		item.Err = err
		return item
	}
	if errors.Is(err, chain.ErrReverted) {
		item.Actual = "none (call reverted)"
		return item
	}
	item.Actual = "unavailable: " + err.Error()
	return item
}

func atLeast(item verifier.ItemResult, have, want *big.Int) verifier.ItemResult {
	item.Actual = have.String()
	item.Met = have.Cmp(want) >= 0
	return item
}

func (v *Verifier) checkNative(ctx context.Context, address common.Address, minimum string) verifier.ItemResult {
	want, _ := ParseAmount(minimum)
	item := verifier.ItemResult{Kind: "eth_balance", Required: want.String()}
	have, err := v.reader.NativeBalance(ctx, address)
	if err != nil {
		return failure(item, err)
	}
	return atLeast(item, have, want)
}

func (v *Verifier) checkERC20(ctx context.Context, address common.Address, t ERC20Requirement) verifier.ItemResult {
	want, _ := ParseAmount(t.Minimum)
	token := common.HexToAddress(t.ContractAddress)
	item := verifier.ItemResult{Kind: "erc20", Key: label(token, t.Symbol), Required: want.String()}
	have, err := v.reader.BalanceOf(ctx, token, address)
	if err != nil {
		return failure(item, err)
	}
	return atLeast(item, have, want)
}

func (v *Verifier) checkERC721(ctx context.Context, address common.Address, c ERC721Requirement) verifier.ItemResult {
	want := big.NewInt(c.MinimumCount)
	if c.MinimumCount == 0 {
		want = big.NewInt(1)
	}
	token := common.HexToAddress(c.ContractAddress)
	item := verifier.ItemResult{Kind: "erc721", Key: label(token, c.Name), Required: want.String()}
	have, err := v.reader.BalanceOf(ctx, token, address)
	if err != nil {
		return failure(item, err)
	}
	return atLeast(item, have, want)
}

func (v *Verifier) checkERC1155(ctx context.Context, address common.Address, t ERC1155Requirement) verifier.ItemResult {
	want, _ := ParseAmount(t.Minimum)
	if want.Sign() == 0 {
		want = big.NewInt(1)
	}
	id, _ := ParseAmount(t.TokenID)
	token := common.HexToAddress(t.ContractAddress)
	item := verifier.ItemResult{Kind: "erc1155", Key: label(token, t.Name) + "#" + id.String(), Required: want.String()}
	have, err := v.reader.ERC1155BalanceOf(ctx, token, address, id)
	if err != nil {
		return failure(item, err)
	}
	return atLeast(item, have, want)
}

func (v *Verifier) checkENS(ctx context.Context, address common.Address, patterns []string) (verifier.ItemResult, string) {
	item := verifier.ItemResult{Kind: "ens", Required: "primary name"}
	if len(patterns) > 0 {
		item.Required = strings.Join(patterns, " | ")
	}
	name, err := v.reader.ReverseName(ctx, address)
	if err != nil {
		return failure(item, err), ""
	}
	item.Actual = name
	if name == "" {
		item.Actual = "none"
		return item, ""
	}
	if len(patterns) == 0 {
		item.Met = true
		return item, name
	}
	for _, p := range patterns {
		if ok, _ := path.Match(strings.ToLower(p), strings.ToLower(name)); ok {
			item.Met = true
			break
		}
	}
	return item, name
}

func (v *Verifier) checkEFP(ctx context.Context, address common.Address, e EFPRequirement) verifier.ItemResult {
	item := verifier.ItemResult{Kind: "efp_" + e.Type, Key: e.Value, Required: e.Value}
	if v.efp == nil {
		item.Err = gaterr.Provider("efp", e.Type, fmt.Errorf("efp client not configured"))
		return item
	}
	switch e.Type {
	case EFPMinimumFollowers:
		item.Key = ""
		want, _ := strconv.ParseInt(e.Value, 10, 64)
		stats, err := v.efp.Stats(ctx, address.Hex())
		if err != nil {
			return failure(item, err)
		}
		return atLeast(item, big.NewInt(stats.Followers), big.NewInt(want))
	case EFPMustFollow:
		item.Required = "following"
		ok, err := v.efp.IsFollowing(ctx, address.Hex(), e.Value)
		if err != nil {
			return failure(item, err)
		}
		item.Met = ok
		item.Actual = strconv.FormatBool(ok)
		return item
	case EFPMustBeFollowedBy:
		item.Required = "followed"
		ok, err := v.efp.IsFollowing(ctx, e.Value, address.Hex())
		if err != nil {
			return failure(item, err)
		}
		item.Met = ok
		item.Actual = strconv.FormatBool(ok)
		return item
	}
	item.Actual = "unsupported"
	return item
}

func label(addr common.Address, name string) string {
	if name != "" {
		return name + " (" + addr.Hex() + ")"
	}
	return addr.Hex()
}
