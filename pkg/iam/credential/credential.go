// Package credential implements strategy-driven selection of a tenant's
// decrypted provider credentials and a provider connectivity probe.
// Selection never crosses a tenant boundary: every read presents the
// tenant id, and the decrypted secret lives only in the returned view.
package credential

import (
	"time"

	"github.com/manifesto-gateway/core/pkg/iam/secret"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Strategy names one of the three selection algorithms.
type Strategy string

const (
	StrategyFirstAvailable Strategy = "first_available"
	StrategyRoundRobin     Strategy = "round_robin"
	StrategyLeastUsed      Strategy = "least_used"
)

// SelectRequest is select's input.
type SelectRequest struct {
	TenantID   kernel.TenantID
	Strategy   Strategy
	OnlyActive bool
	Providers  []secret.Provider // empty means no provider filter
}

// CredentialView is a selected credential with its secret decrypted. This
// type must never be serialized onto the public gateway surface — only
// the internal selection/test endpoints return it.
type CredentialView struct {
	ID               kernel.CredentialID
	Provider         secret.Provider
	DisplayName      string
	Secret           string
	EndpointOverride *string
	ModelConfig      map[string]interface{}
	LastUsedAt       *time.Time
	CreatedAt        time.Time
}

// TestType selects which connectivity probe test() performs.
type TestType string

const (
	TestTypeModelList TestType = "model_list"
	TestTypeChat      TestType = "chat"
)

// TestRequest is test's input.
type TestRequest struct {
	CredentialID kernel.CredentialID
	TenantID     kernel.TenantID
	TestType     TestType
	ModelName    string // only consulted for TestTypeChat
}

// TestOutcome classifies a probe's result beyond a plain boolean.
type TestOutcome string

const (
	OutcomeSuccess      TestOutcome = "success"
	OutcomeTimeout      TestOutcome = "timeout"
	OutcomeUnauthorized TestOutcome = "unauthorized"
	OutcomeRateLimited  TestOutcome = "rate_limited"
	OutcomeOther        TestOutcome = "other"
)

// TestResult is test's output.
type TestResult struct {
	Success    bool
	Outcome    TestOutcome
	DurationMS int64
	Error      string
	Details    map[string]interface{}
}
