package challenge

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/scope"
)

// Submission is a signed challenge presented for verification, together
// with the lock, category and context the server is verifying against.
type Submission struct {
	// Domain is the issuing deployment's domain. A message naming another
	// domain is rejected.
	Domain    string
	Message   string
	Signature string
	Address   string
	LockID    string
	Category  string
	Context   scope.Context
}

// Verify checks that the signed message was issued for sub.Domain and binds
// to the current context, lock, category and claimed address, and that
// checker accepts the signature.
// Binding failures return *gaterr.ChallengeMismatchError; a checker that
// could not reach its data source returns its *gaterr.ProviderError as is.
func Verify(ctx context.Context, sub Submission, checker SignatureChecker) (*Challenge, error) {
	if checker == nil {
		checker = ECDSAChecker{}
	}
	if !common.IsHexAddress(sub.Address) {
		return nil, &gaterr.ChallengeMismatchError{Field: "address", Actual: sub.Address}
	}
	claimed := common.HexToAddress(sub.Address)

	c, err := ParseMessage(sub.Message)
	if err != nil {
		return nil, &gaterr.ChallengeMismatchError{Field: "message", Err: err}
	}

	if c.Domain != sub.Domain {
		return nil, &gaterr.ChallengeMismatchError{Field: "domain", Expected: sub.Domain, Actual: c.Domain}
	}
	if c.Context != sub.Context {
		return nil, &gaterr.ChallengeMismatchError{Field: "context", Expected: sub.Context.String(), Actual: c.Context.String()}
	}
	if c.LockID != sub.LockID {
		return nil, &gaterr.ChallengeMismatchError{Field: "lock", Expected: sub.LockID, Actual: c.LockID}
	}
	if c.Category != sub.Category {
		return nil, &gaterr.ChallengeMismatchError{Field: "category", Expected: sub.Category, Actual: c.Category}
	}
	if common.HexToAddress(c.Address) != claimed {
		return nil, &gaterr.ChallengeMismatchError{Field: "address", Expected: claimed.Hex(), Actual: c.Address}
	}

	sig, err := DecodeSignature(sub.Signature)
	if err != nil {
		return nil, &gaterr.ChallengeMismatchError{Field: "signature", Err: err}
	}
	if err := checker.CheckSignature(ctx, claimed, sub.Message, sig); err != nil {
		if gaterr.IsProvider(err) {
			return nil, err
		}
		return nil, &gaterr.ChallengeMismatchError{Field: "signature", Err: err}
	}
	return c, nil
}
