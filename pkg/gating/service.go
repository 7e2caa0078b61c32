// Package gating ties the lock registry, the verifiers and the
// pre-verification cache together into the two operations the rest of the
// platform calls: decide whether a user may access a gated resource, and
// record a signed verification for one category of a lock.
package gating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lockgate/lockgate/pkg/access"
	"github.com/lockgate/lockgate/pkg/audit"
	"github.com/lockgate/lockgate/pkg/challenge"
	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/locks"
	"github.com/lockgate/lockgate/pkg/policy"
	"github.com/lockgate/lockgate/pkg/preverify"
	"github.com/lockgate/lockgate/pkg/ratelimit"
	"github.com/lockgate/lockgate/pkg/scope"
	"github.com/lockgate/lockgate/pkg/verifier"
)

// Deps are the collaborators of a Service. Locks, Registry and Grants are
// required; the rest have working defaults.
type Deps struct {
	Locks    LockSource
	Registry *verifier.Registry
	Grants   *preverify.Store

	// Resources defaults to ApplicationLookup when Locks is a *locks.Store.
	Resources ResourceLookup
	Policy    *policy.DurationPolicy
	Issuer    *challenge.Issuer
	Limiter   ratelimit.Limiter
	Audit     audit.Recorder
	Metrics   *Metrics
}

// Service implements access decisions and verification submission.
type Service struct {
	locks     LockSource
	resources ResourceLookup
	registry  *verifier.Registry
	grants    *preverify.Store
	policy    *policy.DurationPolicy
	issuer    *challenge.Issuer
	limiter   ratelimit.Limiter
	audit     audit.Recorder
	metrics   *Metrics
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a Service. A nil cfg uses DefaultConfig.
func NewService(deps Deps, cfg *Config, logger *slog.Logger) (*Service, error) {
	if deps.Locks == nil || deps.Registry == nil || deps.Grants == nil {
		return nil, fmt.Errorf("gating service requires locks, registry and grants")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		locks:     deps.Locks,
		resources: deps.Resources,
		registry:  deps.Registry,
		grants:    deps.Grants,
		policy:    deps.Policy,
		issuer:    deps.Issuer,
		limiter:   deps.Limiter,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		cfg:       *cfg,
		logger:    logger,
	}
	if s.resources == nil {
		store, ok := deps.Locks.(*locks.Store)
		if !ok {
			return nil, fmt.Errorf("gating service requires a resource lookup")
		}
		s.resources = ApplicationLookup{Store: store}
	}
	if s.policy == nil {
		s.policy = policy.New(nil)
	}
	if s.issuer == nil {
		s.issuer = challenge.NewIssuer(cfg.ChallengeDomain)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Unlimited{}
	}
	if s.audit == nil {
		s.audit = audit.Discard{}
	}
	if s.cfg.EvaluationTimeout <= 0 {
		s.cfg.EvaluationTimeout = DefaultConfig().EvaluationTimeout
	}
	return s, nil
}

// Categories lists the registered verifiers.
func (s *Service) Categories() []verifier.Metadata {
	return s.registry.List()
}

// Status is an access decision for one user, lock and context.
type Status struct {
	LockID  string        `json:"lockId,omitempty"`
	Context scope.Context `json:"context"`
	access.Decision
}

// DecisionRequest asks whether a user satisfies a lock in a context.
type DecisionRequest struct {
	CommunityID string
	UserID      string
	LockID      string
	Context     scope.Context
	// RequireAll overrides the lock's own mode, as a lock application does.
	RequireAll *bool
}

// DecideAccess computes the access decision for req from the user's
// recorded verifications. Expired verifications count as absent. Without
// an explicit RequireAll, the mode of the lock's application to the
// context's resource applies, falling back to the lock's own mode.
func (s *Service) DecideAccess(ctx context.Context, req DecisionRequest) (*Status, error) {
	if err := req.Context.Validate(); err != nil {
		return nil, &gaterr.ConfigurationError{Field: "context", Err: err}
	}
	lock, err := s.locks.Get(ctx, req.CommunityID, req.LockID)
	if err != nil {
		return nil, err
	}
	cfg := lock.Config()
	requireAll := cfg.RequireAll
	if req.RequireAll != nil {
		requireAll = *req.RequireAll
	} else {
		// The context names a resource; when this lock is applied there,
		// the application's mode governs, as it does for the resource gate.
		app, err := s.resources.Application(ctx, req.CommunityID, req.Context)
		switch {
		case err == nil:
			if app.LockID == lock.ID {
				requireAll = app.RequireAll
			}
		case !gaterr.IsNotFound(err):
			return nil, err
		}
	}

	var rows []preverify.PreVerification
	if req.UserID != "" {
		rows, err = s.grants.List(ctx, req.UserID, lock.ID, req.Context)
		if err != nil {
			return nil, err
		}
	}

	d := access.Decide(access.Input{
		Categories: cfg.AccessCategories(),
		RequireAll: requireAll,
		Records:    preverify.Records(rows),
		Now:        s.grants.Now(),
	})
	s.metrics.recordDecision(d.CanAccess)
	return &Status{LockID: lock.ID, Context: req.Context, Decision: d}, nil
}

// DecideForResource computes the decision for a post or board, using the
// lock and mode of its application. A resource without a lock is open.
func (s *Service) DecideForResource(ctx context.Context, communityID, userID, resourceType, resourceID string) (*Status, error) {
	sc := scope.Context{Type: scope.Type(resourceType), ID: resourceID}
	if err := sc.Validate(); err != nil {
		return nil, &gaterr.ConfigurationError{Field: "resource", Err: err}
	}
	app, err := s.resources.Application(ctx, communityID, sc)
	if err != nil {
		if gaterr.IsNotFound(err) {
			d := access.Decide(access.Input{Now: s.grants.Now()})
			return &Status{Context: sc, Decision: d}, nil
		}
		return nil, err
	}
	requireAll := app.RequireAll
	return s.DecideAccess(ctx, DecisionRequest{
		CommunityID: communityID,
		UserID:      userID,
		LockID:      app.LockID,
		Context:     sc,
		RequireAll:  &requireAll,
	})
}

// target is a lock category resolved for a resource.
type target struct {
	lock     *locks.Lock
	app      *locks.LockApplication
	category locks.GatingCategory
	verifier verifier.Verifier
}

// resolve loads the lock, checks that the resource in communityID carries
// it, and that category is enabled on it.
func (s *Service) resolve(ctx context.Context, communityID, lockID, category string, sc scope.Context) (*target, error) {
	if err := sc.Validate(); err != nil {
		return nil, &gaterr.ConfigurationError{Field: "context", Err: err}
	}
	lock, err := s.locks.Get(ctx, communityID, lockID)
	if err != nil {
		return nil, err
	}
	app, err := s.resources.Application(ctx, communityID, sc)
	if err != nil {
		return nil, err
	}
	if app.LockID != lock.ID {
		return nil, gaterr.NotFound("lock application", sc.String())
	}
	cat, ok := lock.Config().Category(category)
	if !ok {
		return nil, &gaterr.UnknownCategoryError{Type: category, Reason: "not configured on this lock"}
	}
	if !cat.Enabled {
		return nil, &gaterr.UnknownCategoryError{Type: category, Reason: "not enabled on this lock"}
	}
	v, err := s.registry.Lookup(category)
	if err != nil {
		return nil, err
	}
	return &target{lock: lock, app: app, category: cat, verifier: v}, nil
}

// ChallengeRequest asks for a challenge to sign.
type ChallengeRequest struct {
	CommunityID string
	LockID      string
	Category    string
	Context     scope.Context
	Address     string
}

// IssueChallenge creates a challenge for one category of a lock applied to
// the resource named by req.Context. Nothing is stored.
func (s *Service) IssueChallenge(ctx context.Context, req ChallengeRequest) (*challenge.Challenge, error) {
	if _, err := s.resolve(ctx, req.CommunityID, req.LockID, req.Category, req.Context); err != nil {
		return nil, err
	}
	c, err := s.issuer.Create(challenge.Request{
		Address:  req.Address,
		LockID:   req.LockID,
		Category: req.Category,
		Context:  req.Context,
	})
	if err != nil {
		return nil, &gaterr.ConfigurationError{Field: "challenge", Err: err}
	}
	s.metrics.recordChallenge()
	return c, nil
}

// errorOutcome classifies err for metrics.
func errorOutcome(err error) string {
	var rl *gaterr.RateLimitedError
	switch {
	case gaterr.IsChallengeMismatch(err):
		return outcomeChallengeMismatch
	case gaterr.IsProvider(err):
		return outcomeProviderError
	case errors.As(err, &rl):
		return outcomeRateLimited
	}
	var nm *gaterr.RequirementNotMetError
	if errors.As(err, &nm) {
		return outcomeNotMet
	}
	return outcomeRejected
}

// retryAfterSeconds is how long a rate-limited caller must wait.
func retryAfterSeconds(d ratelimit.Decision, now time.Time) int {
	return int(d.RetryAfter(now) / time.Second)
}
