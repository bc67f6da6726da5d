// Package rollover decides, for each domain on each pass, which rollover
// action its certificate age and published associations call for, and applies
// it through the zone store and the collaborator hooks.
package rollover

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/certstore"
	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/dane"
	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/hooks"
	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/zonefile"
)

// CertStore is the certificate side of a rollover: locating a domain's
// material and repointing its serving references.
type CertStore interface {
	Inspect(domain string) (*certstore.Bundle, error)
	Promote(b *certstore.Bundle) error
}

// Manager runs the rollover state machine over a set of domains.
type Manager struct {
	Certs       CertStore
	Hooks       hooks.Invoker
	Log         logr.Logger
	ZonePath    func(domain string) string
	Ports       []int
	Concurrency int
	DryRun      bool // suppress zone writes and promotion
	Now         func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Run processes every domain once. Failures are contained at the domain
// boundary: a domain that cannot be inspected or whose zone cannot be
// mutated is logged and skipped, never aborting the pass.
func (m *Manager) Run(ctx context.Context, domains []string) error {
	g, ctx := errgroup.WithContext(ctx)
	limit := m.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, domain := range domains {
		domain := domain
		g.Go(func() error {
			if err := m.processDomain(ctx, domain); err != nil {
				m.Log.Error(err, "domain skipped", "domain", domain)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) processDomain(ctx context.Context, domain string) error {
	bundle, err := m.Certs.Inspect(domain)
	if err != nil {
		return err
	}
	age := bundle.AgeSeconds(m.now())
	phase := PhaseFor(age)
	log := m.Log.WithValues("domain", domain, "phase", phase.String(), "age", age)

	switch phase {
	case Fresh:
		return m.fresh(ctx, log, domain, bundle)
	case Cutover:
		return m.cutover(ctx, log, domain, bundle)
	case Wait:
		log.Info("waiting for association to propagate")
	default:
		log.Info("rollover window passed, nothing to do")
	}
	return nil
}

// fresh publishes the new certificate's association ahead of serving it. A
// domain without any managed association only has its serving references
// repointed; a domain whose active association already matches the new key is
// left alone, so re-running is free.
func (m *Manager) fresh(ctx context.Context, log logr.Logger, domain string, bundle *certstore.Bundle) error {
	zf, err := zonefile.Load(m.ZonePath(domain))
	if errors.Is(err, fs.ErrNotExist) {
		zf = nil
	} else if err != nil {
		return err
	}

	if zf == nil || !zf.HasManaged() {
		log.Info("no managed associations, updating serving references only")
		return m.promote(ctx, log, bundle)
	}
	if zf.HasActiveDigest(bundle.Digest) {
		log.Info("association already published", "digest", bundle.Digest)
		return nil
	}

	changed := false
	for _, name := range dane.Endpoints(domain, m.Ports) {
		// Endpoints are opt-in: only roll where a record is already published.
		if !zf.HasManagedName(name) {
			continue
		}
		zf.Retire(name)
		zf.Upsert(name, bundle.Digest)
		changed = true
		log.V(1).Info("association rolled", "endpoint", name)
	}
	if !changed {
		log.Info("no managed endpoints match the configured ports")
		return nil
	}

	serial := zf.Bump(m.now())
	if m.DryRun {
		log.Info("dry-run: would publish new association", "digest", bundle.Digest, "serial", serial)
		return nil
	}
	if err := zf.Save(); err != nil {
		return err
	}
	log.Info("new association published", "digest", bundle.Digest, "serial", serial)
	m.resign(ctx, log, domain)
	return nil
}

// cutover finalizes a rollover: the retiring association has had its
// propagation window, so it is removed and the proven certificate goes into
// production. Once the retiring records are gone this phase can never fire
// again for the same rotation.
func (m *Manager) cutover(ctx context.Context, log logr.Logger, domain string, bundle *certstore.Bundle) error {
	zf, err := zonefile.Load(m.ZonePath(domain))
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("no zone file, rollover not in progress")
		return nil
	}
	if err != nil {
		return err
	}
	if !zf.HasRetiring() {
		log.Info("no retiring associations, rollover already complete")
		return nil
	}

	removed := zf.DeleteRetiring()
	serial := zf.Bump(m.now())
	if m.DryRun {
		log.Info("dry-run: would retire associations", "removed", removed, "serial", serial)
		return nil
	}
	if err := zf.Save(); err != nil {
		return err
	}
	log.Info("retiring associations removed", "removed", removed, "serial", serial)

	if err := m.promote(ctx, log, bundle); err != nil {
		// The zone mutation is durable and authoritative; DNS must still
		// converge on it even if the serving swap failed.
		log.Error(err, "serving promotion failed")
	}
	m.resign(ctx, log, domain)
	return nil
}

// promote repoints the serving references and reloads the web server.
func (m *Manager) promote(ctx context.Context, log logr.Logger, bundle *certstore.Bundle) error {
	if m.DryRun {
		log.Info("dry-run: would promote serving references", "dir", bundle.Dir)
		return nil
	}
	if err := m.Certs.Promote(bundle); err != nil {
		return err
	}
	if err := m.Hooks.ReloadWeb(ctx); err != nil {
		log.Error(err, "web reload failed")
	}
	return nil
}

// resign triggers the signer and the DNS reload. Failures are logged only:
// the zone on disk is the source of truth and the next pass retries.
func (m *Manager) resign(ctx context.Context, log logr.Logger, domain string) {
	if err := m.Hooks.SignZone(ctx, domain); err != nil {
		log.Error(err, "zone signing failed")
	}
	if err := m.Hooks.ReloadDNS(ctx); err != nil {
		log.Error(err, "DNS reload failed")
	}
}
