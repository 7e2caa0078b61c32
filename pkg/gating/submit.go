package gating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/datatypes"

	"github.com/lockgate/lockgate/pkg/audit"
	"github.com/lockgate/lockgate/pkg/challenge"
	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/policy"
	"github.com/lockgate/lockgate/pkg/preverify"
	"github.com/lockgate/lockgate/pkg/scope"
	"github.com/lockgate/lockgate/pkg/verifier"
)

// Verification statuses reported to the submitter.
const (
	VerificationVerified = "verified"
	VerificationFailed   = "failed"
)

// Submission is a signed challenge presented for one lock category.
type Submission struct {
	CommunityID      string
	UserID           string
	LockID           string
	CategoryType     string
	Context          scope.Context
	Address          string
	Message          string
	Signature        string
	VerificationData map[string]any
}

// Outcome is what the submitter is told. It accompanies every result of
// SubmitVerification, including errors.
type Outcome struct {
	Success            bool       `json:"success"`
	VerificationStatus string     `json:"verificationStatus"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
	Message            string     `json:"message"`
	Error              string     `json:"error,omitempty"`
}

func failed(err error) *Outcome {
	return &Outcome{
		VerificationStatus: VerificationFailed,
		Message:            err.Error(),
		Error:              gaterr.Code(err),
	}
}

func (sub Submission) validate() error {
	if sub.UserID == "" {
		return gaterr.Configuration("userId", "is required")
	}
	if sub.LockID == "" {
		return gaterr.Configuration("lockId", "is required")
	}
	if sub.CategoryType == "" {
		return gaterr.Configuration("categoryType", "is required")
	}
	if !common.IsHexAddress(sub.Address) {
		return gaterr.Configuration("address", fmt.Sprintf("%q is not a hex address", sub.Address))
	}
	if sub.Message == "" || sub.Signature == "" {
		return gaterr.Configuration("signature", "message and signature are required")
	}
	if err := sub.Context.Validate(); err != nil {
		return &gaterr.ConfigurationError{Field: "context", Err: err}
	}
	return nil
}

// SubmitVerification checks a signed challenge, evaluates the category's
// requirements for the signing address and records a time-bounded grant on
// success.
//
// A challenge bound to another context, lock, category or address is
// rejected before anything is evaluated. Provider failures are returned
// as *gaterr.ProviderError and leave no grant behind. A failed evaluation
// never downgrades a live grant for the same key.
func (s *Service) SubmitVerification(ctx context.Context, sub Submission) (*Outcome, error) {
	out, err := s.submit(ctx, sub)
	if err != nil {
		s.metrics.recordVerification(sub.CategoryType, errorOutcome(err))
		return failed(err), err
	}
	s.metrics.recordVerification(sub.CategoryType, outcomeVerified)
	return out, nil
}

func (s *Service) submit(ctx context.Context, sub Submission) (*Outcome, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}
	t, err := s.resolve(ctx, sub.CommunityID, sub.LockID, sub.CategoryType, sub.Context)
	if err != nil {
		return nil, err
	}

	rl := s.limiter.Allow(ctx, sub.CommunityID+":"+sub.UserID)
	if !rl.Allowed {
		return nil, &gaterr.RateLimitedError{RetryAfterSeconds: retryAfterSeconds(rl, time.Now())}
	}

	c, err := challenge.Verify(ctx, challenge.Submission{
		Domain:    s.issuer.Domain(),
		Message:   sub.Message,
		Signature: sub.Signature,
		Address:   sub.Address,
		LockID:    t.lock.ID,
		Category:  sub.CategoryType,
		Context:   sub.Context,
	}, verifier.SignatureCheckerFor(t.verifier))
	if err != nil {
		if gaterr.IsChallengeMismatch(err) {
			s.logger.Warn("challenge mismatch",
				"community", sub.CommunityID,
				"user", sub.UserID,
				"lock", sub.LockID,
				"category", sub.CategoryType,
				"context", sub.Context.String(),
				"error", err)
			s.record(ctx, sub, audit.EventSecurity, audit.OutcomeDenied, err, nil)
		}
		return nil, err
	}

	key := preverify.Key{
		UserID:       sub.UserID,
		LockID:       t.lock.ID,
		CategoryType: sub.CategoryType,
		Context:      sub.Context,
	}
	if err := s.grants.MarkPending(ctx, key); err != nil {
		return nil, err
	}

	res, err := s.evaluate(ctx, t, sub)
	if err != nil {
		s.resetPending(ctx, key)
		s.record(ctx, sub, audit.EventVerification, audit.OutcomeFailure, err, nil)
		return nil, err
	}

	verifiedAt := s.grants.Now()
	expiresAt := verifiedAt.Add(s.policy.DurationFor(policy.Context{
		Type:          sub.Context.Type,
		BoardOverride: t.app.BoardOverride(),
	}))
	applied, err := s.grants.Upsert(ctx, preverify.Grant{
		Key:     key,
		Address: common.HexToAddress(sub.Address).Hex(),
		Payload: preverify.Payload{
			Signature:        sub.Signature,
			Message:          sub.Message,
			Nonce:            c.Nonce,
			Result:           resultMap(res),
			VerificationData: sub.VerificationData,
		},
		VerifiedAt: verifiedAt,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		s.resetPending(ctx, key)
		return nil, err
	}
	if !applied {
		s.metrics.recordStaleWrite()
		s.logger.Info("fresher grant already recorded", "lock", key.LockID, "category", key.CategoryType, "context", key.Context.String())
	}

	s.record(ctx, sub, audit.EventVerification, audit.OutcomeSuccess, nil, datatypes.JSONMap{
		"expiresAt": expiresAt.Format(time.RFC3339),
	})
	return &Outcome{
		Success:            true,
		VerificationStatus: VerificationVerified,
		ExpiresAt:          &expiresAt,
		Message:            fmt.Sprintf("%s verified until %s", sub.CategoryType, expiresAt.Format(time.RFC3339)),
	}, nil
}

// evaluate decodes the category's requirements and runs the verifier with
// its own deadline. The evaluation outlives a cancelled request so the
// pending row is always resolved.
func (s *Service) evaluate(ctx context.Context, t *target, sub Submission) (verifier.Result, error) {
	req, err := s.registry.Decode(sub.CategoryType, t.category.Requirements)
	if err != nil {
		var unknown *gaterr.UnknownCategoryError
		if errors.As(err, &unknown) {
			return verifier.Result{}, err
		}
		return verifier.Result{}, &gaterr.ConfigurationError{Field: "requirements", Err: err}
	}
	mode, err := verifier.ParseFulfillment(string(t.category.Fulfillment))
	if err != nil {
		return verifier.Result{}, &gaterr.ConfigurationError{Field: "fulfillment", Err: err}
	}

	evalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.EvaluationTimeout)
	defer cancel()

	start := time.Now()
	res := t.verifier.Evaluate(evalCtx, common.HexToAddress(sub.Address), req, mode)
	s.metrics.observeEvaluation(sub.CategoryType, time.Since(start))

	if !res.Valid {
		if res.Err != nil {
			return res, res.Err
		}
		return res, &gaterr.RequirementNotMetError{Category: sub.CategoryType}
	}
	return res, nil
}

func (s *Service) resetPending(ctx context.Context, key preverify.Key) {
	if err := s.grants.ResetPending(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Error("failed to reset pending verification", "lock", key.LockID, "category", key.CategoryType, "error", err)
	}
}

func (s *Service) record(ctx context.Context, sub Submission, eventType, outcome string, err error, meta datatypes.JSONMap) {
	ev := &audit.Event{
		CommunityID:  sub.CommunityID,
		EventType:    eventType,
		Actor:        sub.UserID,
		Address:      sub.Address,
		LockID:       sub.LockID,
		CategoryType: sub.CategoryType,
		ContextType:  string(sub.Context.Type),
		ContextID:    sub.Context.ID,
		Action:       "submit-verification",
		Outcome:      outcome,
		Metadata:     meta,
	}
	if err != nil {
		ev.Code = gaterr.Code(err)
		ev.Reason = err.Error()
	}
	s.audit.Record(ctx, ev)
}

func resultMap(res verifier.Result) map[string]any {
	m := map[string]any{"valid": res.Valid}
	if len(res.Items) > 0 {
		items := make([]map[string]any, len(res.Items))
		for i, it := range res.Items {
			item := map[string]any{"kind": it.Kind, "required": it.Required, "met": it.Met}
			if it.Key != "" {
				item["key"] = it.Key
			}
			if it.Actual != "" {
				item["actual"] = it.Actual
			}
			items[i] = item
		}
		m["items"] = items
	}
	if len(res.Detail) > 0 {
		m["detail"] = res.Detail
	}
	return m
}
