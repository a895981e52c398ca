// Package credentials resolves the IAM principal used as the database login.
//
// There is deliberately no password path: the resolver either produces a
// valid principal from one of its ordered strategies or fails the process
// with a configuration error. Strategies are tried in order and the first
// valid identity wins:
//
//  1. GCE / Cloud Run metadata server (only reachable on managed compute)
//  2. Application Default Credentials file cached by gcloud
//  3. The locally configured gcloud CLI account
//
// The resolver caches its last result so diagnostics (connection-attempt
// logs, health output) can report identity and detection method without
// re-running the chain.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Method identifies which strategy produced an identity.
type Method string

const (
	MethodMetadata   Method = "metadata-server"
	MethodADC        Method = "application-default-credentials"
	MethodGcloud     Method = "gcloud-cli"
	MethodUnresolved Method = "unresolved"
)

// placeholderIdentity is the value the metadata server reports for the
// instance default service account alias. It is not a usable principal and
// must never be accepted as valid.
const placeholderIdentity = "default"

// ErrNoIdentity is returned when no strategy yields a valid principal.
var ErrNoIdentity = errors.New("no usable IAM principal detected")

// Result is the outcome of the most recent detection run.
type Result struct {
	Identity string `json:"identity"`
	Method   Method `json:"method"`
	Valid    bool   `json:"valid"`
}

// Strategy attempts to detect an identity from a single source.
//
// Detect returns the raw identity, or "" when the source has nothing to
// offer. An error means the source itself misbehaved; the chain treats both
// the same way and moves on.
type Strategy interface {
	Method() Method
	Detect(ctx context.Context) (string, error)
}

// Resolver runs the strategy chain and caches the last result.
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger

	mu   sync.Mutex
	last *Result
}

// NewResolver creates a resolver with the default strategy chain.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		strategies: []Strategy{
			newMetadataStrategy(),
			newADCStrategy(),
			newGcloudStrategy(),
		},
		logger: logger,
	}
}

// NewResolverWithStrategies creates a resolver with an explicit chain.
// Used by tests to substitute strategy sources.
func NewResolverWithStrategies(logger *zap.Logger, strategies ...Strategy) *Resolver {
	r := NewResolver(logger)
	r.strategies = strategies
	return r
}

// Detect runs the chain and returns the first valid identity.
//
// Invalid identities (empty, the metadata placeholder, or anything that is
// not a principal-shaped name) are logged and skipped, never returned as
// valid. If the chain is exhausted, the cached result records the terminal
// unresolved state and ErrNoIdentity is returned with a remediation hint.
func (r *Resolver) Detect(ctx context.Context) (*Result, error) {
	for _, s := range r.strategies {
		identity, err := s.Detect(ctx)
		if err != nil {
			r.logger.Debug("identity strategy failed",
				zap.String("method", string(s.Method())),
				zap.Error(err))
			continue
		}
		if identity == "" {
			continue
		}
		if !ValidIdentity(identity) {
			r.logger.Warn("identity strategy produced unusable principal, trying next",
				zap.String("method", string(s.Method())),
				zap.String("identity", identity))
			continue
		}

		result := &Result{Identity: identity, Method: s.Method(), Valid: true}
		r.setLast(result)
		r.logger.Info("resolved IAM principal",
			zap.String("identity", identity),
			zap.String("method", string(s.Method())))
		return result, nil
	}

	r.setLast(&Result{Method: MethodUnresolved, Valid: false})
	return nil, fmt.Errorf("%w: run on managed compute, set up application default credentials, "+
		"or authenticate the gcloud CLI; the principal also needs the Cloud SQL Instance User role", ErrNoIdentity)
}

// Last returns the most recent detection result without re-running the
// chain. Returns nil if Detect has never been called.
func (r *Resolver) Last() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Resolver) setLast(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = res
}

// ValidIdentity reports whether a detected identity is usable as a login
// principal: non-empty, not the metadata placeholder, and principal-shaped.
func ValidIdentity(identity string) bool {
	if identity == "" || identity == placeholderIdentity {
		return false
	}
	return strings.Contains(identity, "@")
}

// DatabaseUser converts an IAM principal into the Postgres IAM username.
// Cloud SQL truncates the ".gserviceaccount.com" suffix for service
// accounts; user accounts map through unchanged.
func DatabaseUser(identity string) string {
	return strings.TrimSuffix(identity, ".gserviceaccount.com")
}
