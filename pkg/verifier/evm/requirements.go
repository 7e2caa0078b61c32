package evm

import (
	"fmt"
	"math/big"
	"path"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lockgate/lockgate/pkg/gaterr"
)

// Type is the category type handled by this package.
const Type = "ethereum_profile"

// EFP requirement kinds.
const (
	EFPMinimumFollowers = "minimum_followers"
	EFPMustFollow       = "must_follow"
	EFPMustBeFollowedBy = "must_be_followed_by"
)

// Requirements is the requirement set of an ethereum_profile category.
// Amounts are decimal strings in the token's smallest unit.
type Requirements struct {
	MinimumETHBalance         string               `json:"minimumETHBalance,omitempty"`
	RequiredERC20Tokens       []ERC20Requirement   `json:"requiredERC20Tokens,omitempty"`
	RequiredERC721Collections []ERC721Requirement  `json:"requiredERC721Collections,omitempty"`
	RequiredERC1155Tokens     []ERC1155Requirement `json:"requiredERC1155Tokens,omitempty"`
	RequiresENS               bool                 `json:"requiresENS,omitempty"`
	ENSDomainPatterns         []string             `json:"ensDomainPatterns,omitempty"`
	EFPRequirements           []EFPRequirement     `json:"efpRequirements,omitempty"`
}

// CategoryType implements verifier.Requirements.
func (Requirements) CategoryType() string { return Type }

type ERC20Requirement struct {
	ContractAddress string `json:"contractAddress"`
	Minimum         string `json:"minimum"`
	Name            string `json:"name,omitempty"`
	Symbol          string `json:"symbol,omitempty"`
	Decimals        int    `json:"decimals,omitempty"`
}

type ERC721Requirement struct {
	ContractAddress string `json:"contractAddress"`
	MinimumCount    int64  `json:"minimumCount"`
	Name            string `json:"name,omitempty"`
}

type ERC1155Requirement struct {
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
	Minimum         string `json:"minimum"`
	Name            string `json:"name,omitempty"`
}

type EFPRequirement struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ParseAmount parses a non-negative base-10 integer. Empty means zero.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", s)
	}
	return n, nil
}

func validate(req Requirements) error {
	if _, err := ParseAmount(req.MinimumETHBalance); err != nil {
		return &gaterr.ConfigurationError{Field: "minimumETHBalance", Err: err}
	}
	for i, t := range req.RequiredERC20Tokens {
		field := fmt.Sprintf("requiredERC20Tokens[%d]", i)
		if !common.IsHexAddress(t.ContractAddress) {
			return gaterr.Configuration(field+".contractAddress", "invalid address")
		}
		if _, err := ParseAmount(t.Minimum); err != nil {
			return &gaterr.ConfigurationError{Field: field + ".minimum", Err: err}
		}
		if t.Decimals < 0 || t.Decimals > 77 {
			return gaterr.Configuration(field+".decimals", "out of range")
		}
	}
	for i, c := range req.RequiredERC721Collections {
		field := fmt.Sprintf("requiredERC721Collections[%d]", i)
		if !common.IsHexAddress(c.ContractAddress) {
			return gaterr.Configuration(field+".contractAddress", "invalid address")
		}
		if c.MinimumCount < 0 {
			return gaterr.Configuration(field+".minimumCount", "must not be negative")
		}
	}
	for i, t := range req.RequiredERC1155Tokens {
		field := fmt.Sprintf("requiredERC1155Tokens[%d]", i)
		if !common.IsHexAddress(t.ContractAddress) {
			return gaterr.Configuration(field+".contractAddress", "invalid address")
		}
		if strings.TrimSpace(t.TokenID) == "" {
			return gaterr.Configuration(field+".tokenId", "required")
		}
		if _, err := ParseAmount(t.TokenID); err != nil {
			return &gaterr.ConfigurationError{Field: field + ".tokenId", Err: err}
		}
		if _, err := ParseAmount(t.Minimum); err != nil {
			return &gaterr.ConfigurationError{Field: field + ".minimum", Err: err}
		}
	}
	for i, p := range req.ENSDomainPatterns {
		if _, err := path.Match(p, ""); err != nil || strings.TrimSpace(p) == "" {
			return gaterr.Configuration(fmt.Sprintf("ensDomainPatterns[%d]", i), "invalid pattern")
		}
	}
	for i, e := range req.EFPRequirements {
		field := fmt.Sprintf("efpRequirements[%d]", i)
		switch e.Type {
		case EFPMinimumFollowers:
			if n, err := strconv.ParseInt(e.Value, 10, 64); err != nil || n < 0 {
				return gaterr.Configuration(field+".value", "must be a non-negative integer")
			}
		case EFPMustFollow, EFPMustBeFollowedBy:
			if !common.IsHexAddress(e.Value) && !strings.Contains(e.Value, ".") {
				return gaterr.Configuration(field+".value", "must be an address or ENS name")
			}
		default:
			return gaterr.Configuration(field+".type", fmt.Sprintf("unknown efp requirement %q", e.Type))
		}
	}
	return nil
}
