package challenge

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureError reports a signature that cannot be decoded or recovered.
type SignatureError struct {
	Reason string
	Err    error
}

func (e *SignatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid signature: %s: %v", e.Reason, e.Err)
	}
	return "invalid signature: " + e.Reason
}

func (e *SignatureError) Unwrap() error { return e.Err }

// SignatureChecker decides whether signature over message was produced on
// behalf of address.
type SignatureChecker interface {
	CheckSignature(ctx context.Context, address common.Address, message string, signature []byte) error
}

// ECDSAChecker verifies EIP-191 personal_sign signatures from externally
// owned accounts. It never performs I/O.
type ECDSAChecker struct{}

// CheckSignature implements SignatureChecker.
func (ECDSAChecker) CheckSignature(_ context.Context, address common.Address, message string, signature []byte) error {
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return err
	}
	if recovered != address {
		return &SignatureError{Reason: fmt.Sprintf("signer %s does not match %s", recovered.Hex(), address.Hex())}
	}
	return nil
}

// DecodeSignature parses a 0x-prefixed 65-byte hex signature.
func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, &SignatureError{Reason: "not hex", Err: err}
	}
	if len(sig) != crypto.SignatureLength {
		return nil, &SignatureError{Reason: fmt.Sprintf("expected %d bytes, got %d", crypto.SignatureLength, len(sig))}
	}
	return sig, nil
}

// MessageHash returns the EIP-191 personal message hash of message.
func MessageHash(message string) common.Hash {
	return common.BytesToHash(accounts.TextHash([]byte(message)))
}

// RecoverAddress returns the address that produced an EIP-191 signature
// over message. Wallets emit V as 27/28; both that and 0/1 are accepted.
func RecoverAddress(message string, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, &SignatureError{Reason: fmt.Sprintf("expected %d bytes, got %d", crypto.SignatureLength, len(signature))}
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, &SignatureError{Reason: fmt.Sprintf("invalid recovery id %d", signature[crypto.RecoveryIDOffset])}
	}

	pub, err := crypto.SigToPub(MessageHash(message).Bytes(), sig)
	if err != nil {
		return common.Address{}, &SignatureError{Reason: "recovery failed", Err: err}
	}
	return crypto.PubkeyToAddress(*pub), nil
}
