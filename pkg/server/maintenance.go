package server

import (
	"context"
	"time"

	"github.com/crutech/nydus/pkg/auth"
	"github.com/crutech/nydus/pkg/logger"
	"github.com/crutech/nydus/pkg/pool"
	"github.com/crutech/nydus/pkg/sessions"
	"github.com/crutech/nydus/pkg/token"
)

// DefaultMaintenancePeriod is how often the maintenance pass runs.
const DefaultMaintenancePeriod = 30 * time.Minute

// Maintainer runs the periodic pool upkeep: renew tokens due to expire
// within the next couple of passes, release tenancies that outlived the
// allocation timeout, and release tenancies whose user is no longer logged
// in from the workstation that holds them.
type Maintainer struct {
	engine   *pool.Engine
	client   *auth.Client
	provider auth.IdentityProvider
	prober   sessions.Prober

	period       time.Duration
	allocTimeout time.Duration
}

// MaintainerOption configures a Maintainer.
type MaintainerOption func(*Maintainer)

// WithPeriod overrides the pass interval.
func WithPeriod(period time.Duration) MaintainerOption {
	return func(m *Maintainer) {
		m.period = period
	}
}

// WithAllocationTimeout overrides how long a tenancy may stand.
func WithAllocationTimeout(limit time.Duration) MaintainerOption {
	return func(m *Maintainer) {
		m.allocTimeout = limit
	}
}

// NewMaintainer creates a maintainer over the given engine and auth stack.
func NewMaintainer(engine *pool.Engine, client *auth.Client, provider auth.IdentityProvider, prober sessions.Prober, opts ...MaintainerOption) *Maintainer {
	m := &Maintainer{
		engine:       engine,
		client:       client,
		provider:     provider,
		prober:       prober,
		period:       DefaultMaintenancePeriod,
		allocTimeout: pool.DefaultAllocationTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes a pass every period until ctx is cancelled.
func (m *Maintainer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Pass(ctx)
		}
	}
}

// Pass runs one maintenance pass. All three phases share one critical
// section so no allocation interleaves with a half-renewed record.
func (m *Maintainer) Pass(ctx context.Context) {
	live, err := m.prober.All(ctx)
	probed := err == nil
	if !probed {
		// Without session data the sweep would release every tenancy.
		logger.Warnf("Session probe failed, skipping session sweep: %v", err)
	}

	if err := m.engine.Mutate(func(records []*pool.Record) bool {
		changed := false
		for _, r := range records {
			if m.renewBundle(ctx, r) {
				changed = true
			}
			if r.TenancyExpired(m.allocTimeout) {
				logger.Infof("Releasing %s: tenancy for %s@%s exceeded %v",
					r.UUID(), r.ClientUser(), r.ClientAddr(), m.allocTimeout)
				r.Release()
				changed = true
			}
			if probed && r.Allocated() && !sessions.Matching(live, r.ClientUser(), r.ClientAddr()) {
				logger.Infof("Releasing %s: %s is no longer logged in from %s",
					r.UUID(), r.ClientUser(), r.ClientAddr())
				r.Release()
				changed = true
			}
		}
		return changed
	}); err != nil {
		logger.Fatalf("Cannot persist pool file after maintenance: %v", err)
	}
}

// renewBundle refreshes each token of one record that is due to expire
// within the next renewal window. A failed stage is logged and skipped; the
// next pass tries again, and later stages still run off the tokens it has.
func (m *Maintainer) renewBundle(ctx context.Context, r *pool.Record) bool {
	b := r.Bundle()
	changed := false

	if m.due(b.MSAL()) {
		if t, err := m.provider.Acquire(ctx, b.Username(), false); err != nil {
			logger.Warnf("Failed to renew identity token for %s: %v", b.Username(), err)
		} else {
			b.SetMSALToken(t)
			changed = true
		}
	}
	if m.due(b.XboxLive()) {
		if t, err := m.client.XboxLiveToken(ctx, b.MSAL()); err != nil {
			logger.Warnf("Failed to renew Xbox Live token for %s: %v", b.Username(), err)
		} else {
			b.SetXboxLiveToken(t)
			changed = true
		}
	}
	if m.due(b.XSTS()) {
		if t, err := m.client.XSTSToken(ctx, b.XboxLive()); err != nil {
			logger.Warnf("Failed to renew XSTS token for %s: %v", b.Username(), err)
		} else {
			b.SetXSTSToken(t)
			changed = true
		}
	}
	if m.due(b.Minecraft()) {
		if t, err := m.client.MinecraftToken(ctx, b.XSTS()); err != nil {
			logger.Warnf("Failed to renew Minecraft token for %s: %v", b.Username(), err)
		} else {
			b.SetMinecraftToken(t)
			changed = true
		}
	}
	return changed
}

func (m *Maintainer) due(t token.AccessToken) bool {
	need, err := t.NeedsRenewal(m.period, token.DefaultRenewalIntervals)
	if err != nil {
		logger.Warnf("Cannot judge token renewal: %v", err)
		return false
	}
	return need
}
