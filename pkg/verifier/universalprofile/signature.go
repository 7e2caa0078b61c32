package universalprofile

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lockgate/lockgate/pkg/challenge"
	"github.com/lockgate/lockgate/pkg/chain"
)

// ERC1271Checker accepts signatures the profile contract validates through
// isValidSignature. A signature recovered directly to the profile address
// is accepted without a contract call.
type ERC1271Checker struct {
	reader chain.Reader
}

// NewERC1271Checker returns a checker using reader.
func NewERC1271Checker(reader chain.Reader) *ERC1271Checker {
	return &ERC1271Checker{reader: reader}
}

func (c *ERC1271Checker) CheckSignature(ctx context.Context, address common.Address, message string, signature []byte) error {
	if recovered, err := challenge.RecoverAddress(message, signature); err == nil && recovered == address {
		return nil
	}
	ok, err := c.reader.IsValidSignature(ctx, address, challenge.MessageHash(message), signature)
	if err != nil {
		return err
	}
	if !ok {
		return &challenge.SignatureError{Reason: "profile contract rejected signature"}
	}
	return nil
}
