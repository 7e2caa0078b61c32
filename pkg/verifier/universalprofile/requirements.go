package universalprofile

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/verifier/evm"
)

// Type is the category type handled by this package.
const Type = "universal_profile"

// Token standards.
const (
	LSP7 = "LSP7"
	LSP8 = "LSP8"
)

// Follower requirement kinds.
const (
	FollowerMinimum    = "minimum_followers"
	FollowerFollowedBy = "followed_by"
	FollowerFollowing  = "following"
)

// Requirements is the requirement set of a universal_profile category.
type Requirements struct {
	MinLyxBalance        string                `json:"minLyxBalance,omitempty"`
	RequiredTokens       []TokenRequirement    `json:"requiredTokens,omitempty"`
	FollowerRequirements []FollowerRequirement `json:"followerRequirements,omitempty"`
}

// CategoryType implements verifier.Requirements.
func (Requirements) CategoryType() string { return Type }

// TokenRequirement requires an LSP7 balance, an LSP8 balance, or ownership
// of a specific LSP8 token id.
type TokenRequirement struct {
	TokenType       string `json:"tokenType"`
	ContractAddress string `json:"contractAddress"`
	MinAmount       string `json:"minAmount,omitempty"`
	TokenID         string `json:"tokenId,omitempty"`
	Name            string `json:"name,omitempty"`
	Symbol          string `json:"symbol,omitempty"`
}

type FollowerRequirement struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ParseTokenID parses an LSP8 token id given as 0x-prefixed bytes32 hex or
// as a decimal number.
func ParseTokenID(s string) ([32]byte, error) {
	var id [32]byte
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hexutil.Decode("0x" + s[2:])
		if err != nil {
			return id, fmt.Errorf("invalid token id %q: %w", s, err)
		}
		if len(b) > 32 {
			return id, fmt.Errorf("invalid token id %q: longer than 32 bytes", s)
		}
		copy(id[32-len(b):], b)
		return id, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		return id, fmt.Errorf("invalid token id %q", s)
	}
	n.FillBytes(id[:])
	return id, nil
}

func validate(req Requirements) error {
	if _, err := evm.ParseAmount(req.MinLyxBalance); err != nil {
		return &gaterr.ConfigurationError{Field: "minLyxBalance", Err: err}
	}
	for i, t := range req.RequiredTokens {
		field := fmt.Sprintf("requiredTokens[%d]", i)
		if t.TokenType != LSP7 && t.TokenType != LSP8 {
			return gaterr.Configuration(field+".tokenType", fmt.Sprintf("must be %s or %s", LSP7, LSP8))
		}
		if !common.IsHexAddress(t.ContractAddress) {
			return gaterr.Configuration(field+".contractAddress", "invalid address")
		}
		if _, err := evm.ParseAmount(t.MinAmount); err != nil {
			return &gaterr.ConfigurationError{Field: field + ".minAmount", Err: err}
		}
		if t.TokenID != "" {
			if t.TokenType != LSP8 {
				return gaterr.Configuration(field+".tokenId", "only LSP8 tokens have ids")
			}
			if _, err := ParseTokenID(t.TokenID); err != nil {
				return &gaterr.ConfigurationError{Field: field + ".tokenId", Err: err}
			}
		}
	}
	for i, f := range req.FollowerRequirements {
		field := fmt.Sprintf("followerRequirements[%d]", i)
		switch f.Type {
		case FollowerMinimum:
			if n, err := strconv.ParseInt(f.Value, 10, 64); err != nil || n < 0 {
				return gaterr.Configuration(field+".value", "must be a non-negative integer")
			}
		case FollowerFollowedBy, FollowerFollowing:
			if !common.IsHexAddress(f.Value) {
				return gaterr.Configuration(field+".value", "must be a profile address")
			}
		default:
			return gaterr.Configuration(field+".type", fmt.Sprintf("unknown follower requirement %q", f.Type))
		}
	}
	return nil
}
