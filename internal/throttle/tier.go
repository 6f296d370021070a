package throttle

import (
	"context"
	"time"

	"go-auth-server/internal/model"
)

// IdentityKind selects how a tier identifies the caller.
type IdentityKind int

const (
	// IdentityAnonymous keys on the caller IP and skips authenticated requests.
	IdentityAnonymous IdentityKind = iota
	// IdentityPrincipal keys on the principal and falls back to the IP.
	IdentityPrincipal
)

type Tier struct {
	Scope    string
	Rate     Rate
	Identity IdentityKind
}

// Identify returns the window identity for a request, or false when the tier does not
// apply to it.
func (t Tier) Identify(principal model.Principal, ip string) (string, bool) {
	switch t.Identity {
	case IdentityAnonymous:
		if principal != nil {
			return "", false
		}
		return ip, ip != ""
	default:
		if principal != nil {
			return principal.PrincipalType() + ":" + principal.PrincipalID(), true
		}
		return ip, ip != ""
	}
}

type TierConfig struct {
	Anon      string
	Burst     string
	Sustained string
}

// Tiers builds the anon, burst and sustained tiers. An empty rate disables its tier.
func (c TierConfig) Tiers() ([]Tier, error) {
	specs := []struct {
		scope string
		rate  string
		kind  IdentityKind
	}{
		{"anon", c.Anon, IdentityAnonymous},
		{"burst", c.Burst, IdentityPrincipal},
		{"sustained", c.Sustained, IdentityPrincipal},
	}

	tiers := make([]Tier, 0, len(specs))
	for _, s := range specs {
		if s.rate == "" {
			continue
		}
		rate, err := ParseRate(s.rate)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, Tier{Scope: s.scope, Rate: rate, Identity: s.kind})
	}
	return tiers, nil
}

// Decision is the outcome of checking every tier for a request.
type Decision struct {
	Allowed bool
	// Scope is the first tier that rejected the request.
	Scope string
	// RetryAfter is the longest wait across the rejecting tiers.
	RetryAfter time.Duration
}

// Check evaluates tiers in order. Requests are recorded until the first rejection; the
// remaining tiers are only inspected so the longest wait can be reported.
func (t *Throttle) Check(ctx context.Context, tiers []Tier, principal model.Principal, ip string) (Decision, error) {
	decision := Decision{Allowed: true}

	for _, tier := range tiers {
		identity, ok := tier.Identify(principal, ip)
		if !ok {
			continue
		}

		if decision.Allowed {
			allowed, err := t.Allow(ctx, tier.Scope, identity, tier.Rate)
			if err != nil {
				return Decision{}, err
			}
			if allowed {
				continue
			}
			decision.Allowed = false
			decision.Scope = tier.Scope
		}

		wait, limited, err := t.Wait(ctx, tier.Scope, identity, tier.Rate)
		if err != nil {
			return Decision{}, err
		}
		if limited && wait > decision.RetryAfter {
			decision.RetryAfter = wait
		}
	}

	if !decision.Allowed {
		t.logger.Info("request throttled", "scope", decision.Scope, "ip", ip, "retry_after", decision.RetryAfter)
	}
	return decision, nil
}
