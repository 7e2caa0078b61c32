// Package universalprofile implements the universal_profile category: proofs
// for LUKSO Universal Profiles, which are smart contract accounts holding
// LYX, LSP7/LSP8 assets and LSP26 follower relationships.
package universalprofile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lockgate/lockgate/pkg/challenge"
	"github.com/lockgate/lockgate/pkg/chain"
	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/verifier"
	"github.com/lockgate/lockgate/pkg/verifier/evm"
)

// DefaultFollowerRegistry is the LSP26 follower registry on LUKSO mainnet.
var DefaultFollowerRegistry = common.HexToAddress("0xf01103E5a9909Fc0DBe8166dA7085e0285daDDcA")

// Config configures the verifier.
type Config struct {
	FollowerRegistry common.Address
}

// Verifier evaluates universal_profile requirements.
type Verifier struct {
	reader chain.Reader
	cfg    Config
	logger *slog.Logger
}

var (
	_ verifier.Verifier                 = (*Verifier)(nil)
	_ verifier.SignatureCheckerProvider = (*Verifier)(nil)
)

// New returns a verifier reading LUKSO state from reader.
func New(reader chain.Reader, cfg Config, logger *slog.Logger) *Verifier {
	if cfg.FollowerRegistry == (common.Address{}) {
		cfg.FollowerRegistry = DefaultFollowerRegistry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{reader: reader, cfg: cfg, logger: logger.With("verifier", Type)}
}

func (v *Verifier) Type() string { return Type }

func (v *Verifier) Metadata() verifier.Metadata {
	return verifier.Metadata{
		Type:             Type,
		Name:             "LUKSO Universal Profile",
		Description:      "Prove control of a Universal Profile holding LYX, LSP7/LSP8 assets or LSP26 followers.",
		RequirementKinds: []string{"lyx_balance", "lsp7", "lsp8", "lsp26"},
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

// SignatureChecker returns an ERC-1271 checker backed by the profile contract.
func (v *Verifier) SignatureChecker() challenge.SignatureChecker {
	return NewERC1271Checker(v.reader)
}

func (v *Verifier) Evaluate(ctx context.Context, address common.Address, req verifier.Requirements, mode verifier.Fulfillment) verifier.Result {
	r, ok := asRequirements(req)
	if !ok {
		return verifier.Failed(gaterr.Configuration("requirements", fmt.Sprintf("unexpected type %T", req)))
	}
	if err := validate(r); err != nil {
		return verifier.Failed(err)
	}

	var items []verifier.ItemResult
	if r.MinLyxBalance != "" {
		items = append(items, v.checkLYX(ctx, address, r.MinLyxBalance))
	}
	for _, t := range r.RequiredTokens {
		items = append(items, v.checkToken(ctx, address, t))
	}
	for _, f := range r.FollowerRequirements {
		items = append(items, v.checkFollower(ctx, address, f))
	}

	res := verifier.Combine(Type, mode, items)
	res.Detail = map[string]any{"address": address.Hex()}
	if res.Err != nil {
		v.logger.Debug("evaluation failed", "address", address.Hex(), "code", gaterr.Code(res.Err), "error", res.Err)
	}
	return res
}

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

func (v *Verifier) checkLYX(ctx context.Context, address common.Address, minimum string) verifier.ItemResult {
	want, _ := evm.ParseAmount(minimum)
	item := verifier.ItemResult{Kind: "lyx_balance", Required: want.String()}
	have, err := v.reader.NativeBalance(ctx, address)
	if err != nil {
		return failure(item, err)
	}
	item.Actual = have.String()
	item.Met = have.Cmp(want) >= 0
	return item
}

func (v *Verifier) checkToken(ctx context.Context, address common.Address, t TokenRequirement) verifier.ItemResult {
	token := common.HexToAddress(t.ContractAddress)
	key := token.Hex()
	if t.Symbol != "" {
		key = t.Symbol + " (" + key + ")"
	} else if t.Name != "" {
		key = t.Name + " (" + key + ")"
	}

	if t.TokenType == LSP8 && t.TokenID != "" {
		id, _ := ParseTokenID(t.TokenID)
		item := verifier.ItemResult{Kind: "lsp8_token", Key: key + "#" + common.Hash(id).Hex(), Required: address.Hex()}
		owner, err := v.reader.TokenOwnerOf(ctx, token, id)
		if err != nil {
			return failure(item, err)
		}
		item.Actual = owner.Hex()
		item.Met = owner == address
		return item
	}

	want, _ := evm.ParseAmount(t.MinAmount)
	if want.Sign() == 0 {
		want = big.NewInt(1)
	}
	kind := "lsp7"
	if t.TokenType == LSP8 {
		kind = "lsp8"
	}
	item := verifier.ItemResult{Kind: kind, Key: key, Required: want.String()}
	have, err := v.reader.BalanceOf(ctx, token, address)
	if err != nil {
		return failure(item, err)
	}
	item.Actual = have.String()
	item.Met = have.Cmp(want) >= 0
	return item
}

func (v *Verifier) checkFollower(ctx context.Context, address common.Address, f FollowerRequirement) verifier.ItemResult {
	item := verifier.ItemResult{Kind: "lsp26_" + f.Type, Required: f.Value}
	switch f.Type {
	case FollowerMinimum:
		want, _ := strconv.ParseInt(f.Value, 10, 64)
		have, err := v.reader.FollowerCount(ctx, v.cfg.FollowerRegistry, address)
		if err != nil {
			return failure(item, err)
		}
		item.Actual = have.String()
		item.Met = have.Cmp(big.NewInt(want)) >= 0
	case FollowerFollowedBy:
		item.Key = f.Value
		item.Required = "followed"
		ok, err := v.reader.IsFollowing(ctx, v.cfg.FollowerRegistry, common.HexToAddress(f.Value), address)
		if err != nil {
			return failure(item, err)
		}
		item.Actual = strconv.FormatBool(ok)
		item.Met = ok
	case FollowerFollowing:
		item.Key = f.Value
		item.Required = "following"
		ok, err := v.reader.IsFollowing(ctx, v.cfg.FollowerRegistry, address, common.HexToAddress(f.Value))
		if err != nil {
			return failure(item, err)
		}
		item.Actual = strconv.FormatBool(ok)
		item.Met = ok
	}
	return item
}
