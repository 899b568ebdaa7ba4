package credential

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/manifesto-gateway/core/pkg/iam/secret"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// SecretStore is the narrow slice of secretsrv.SecretService the selector
// and prober depend on, kept as a local interface so this package composes
// with pkg/iam/secret without importing its constructor signature directly.
type SecretStore interface {
	ListByTenant(ctx context.Context, tenantID kernel.TenantID, opts secret.ListOptions) ([]*secret.ProviderCredential, error)
	FetchByID(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) (*secret.ProviderCredential, error)
	DecryptByID(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) (string, error)
	TouchLastUsed(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID, now time.Time) error
}

// Selector picks tenant-owned credentials by strategy. The round_robin
// cursor is held in-memory per tenant; losing it on restart only restarts
// the rotation, it never selects a wrong credential.
type Selector struct {
	secrets SecretStore

	mu      sync.Mutex
	cursors map[kernel.TenantID]int
}

// NewSelector builds a Selector.
func NewSelector(secrets SecretStore) *Selector {
	return &Selector{secrets: secrets, cursors: make(map[kernel.TenantID]int)}
}

// Select runs req.Strategy against req.TenantID's credentials, returning
// the single best candidate decrypted. On success, stamps last-used for
// least_used's next evaluation.
func (s *Selector) Select(ctx context.Context, req SelectRequest) (*CredentialView, error) {
	candidates, err := s.order(ctx, req)
	if err != nil {
		return nil, err
	}

	chosen := candidates[0]
	plaintext, err := s.secrets.DecryptByID(ctx, chosen.ID, req.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_ = s.secrets.TouchLastUsed(ctx, chosen.ID, req.TenantID, now)

	view := viewOf(chosen, plaintext)
	return &view, nil
}

// SelectAll returns every matching credential decrypted, in strategy
// order. This backs the internal availability listing, where the caller
// wants the full fallback chain rather than one pick; last-used stamping
// is left to the caller's eventual use of a specific credential.
func (s *Selector) SelectAll(ctx context.Context, req SelectRequest) ([]CredentialView, error) {
	candidates, err := s.order(ctx, req)
	if err != nil {
		return nil, err
	}

	views := make([]CredentialView, 0, len(candidates))
	for _, c := range candidates {
		plaintext, err := s.secrets.DecryptByID(ctx, c.ID, req.TenantID)
		if err != nil {
			return nil, err
		}
		views = append(views, viewOf(c, plaintext))
	}
	return views, nil
}

// order filters and sorts the tenant's credentials per req.Strategy,
// returning at least one candidate or an error.
func (s *Selector) order(ctx context.Context, req SelectRequest) ([]*secret.ProviderCredential, error) {
	all, err := s.secrets.ListByTenant(ctx, req.TenantID, secret.ListOptions{})
	if err != nil {
		return nil, err
	}

	candidates := filterCredentials(all, req)
	if len(candidates) == 0 {
		return nil, ErrNoneAvailable()
	}

	switch req.Strategy {
	case StrategyFirstAvailable:
		sortByCreatedAt(candidates)
	case StrategyRoundRobin:
		sortByCreatedAt(candidates)
		candidates = s.rotateRoundRobin(req.TenantID, candidates)
	case StrategyLeastUsed:
		sortByLeastUsed(candidates)
	default:
		return nil, ErrUnknownStrategy(req.Strategy)
	}
	return candidates, nil
}

func viewOf(c *secret.ProviderCredential, plaintext string) CredentialView {
	return CredentialView{
		ID:               c.ID,
		Provider:         c.Provider,
		DisplayName:      c.DisplayName,
		Secret:           plaintext,
		EndpointOverride: c.EndpointOverride,
		ModelConfig:      c.ModelConfig,
		LastUsedAt:       c.LastUsedAt,
		CreatedAt:        c.CreatedAt,
	}
}

func filterCredentials(all []*secret.ProviderCredential, req SelectRequest) []*secret.ProviderCredential {
	providerSet := make(map[secret.Provider]struct{}, len(req.Providers))
	for _, p := range req.Providers {
		providerSet[p] = struct{}{}
	}

	out := make([]*secret.ProviderCredential, 0, len(all))
	for _, c := range all {
		if req.OnlyActive && !c.IsActive {
			continue
		}
		if len(providerSet) > 0 {
			if _, ok := providerSet[c.Provider]; !ok {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func sortByCreatedAt(cs []*secret.ProviderCredential) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].CreatedAt.Before(cs[j].CreatedAt) })
}

// sortByLeastUsed orders by descending idle time since last use: a nil
// LastUsedAt (never used) sorts first, then oldest LastUsedAt first. Ties
// broken by creation time ascending.
func sortByLeastUsed(cs []*secret.ProviderCredential) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if (a.LastUsedAt == nil) != (b.LastUsedAt == nil) {
			return a.LastUsedAt == nil
		}
		if a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt) {
			return a.LastUsedAt.Before(*b.LastUsedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// rotateRoundRobin returns cs rotated so the cursor's pick leads, then
// advances the cursor.
func (s *Selector) rotateRoundRobin(tenantID kernel.TenantID, cs []*secret.ProviderCredential) []*secret.ProviderCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.cursors[tenantID] % len(cs)
	s.cursors[tenantID] = (idx + 1) % len(cs)

	rotated := make([]*secret.ProviderCredential, 0, len(cs))
	rotated = append(rotated, cs[idx:]...)
	rotated = append(rotated, cs[:idx]...)
	return rotated
}
