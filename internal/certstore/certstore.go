// Package certstore locates a domain's certificate material, derives the
// attributes the rollover needs (age and public-key digest), and maintains
// the serving references the web server is handed.
package certstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/dane"
)

// ErrNotFound reports that no certificate exists for a domain under any known
// path convention.
var ErrNotFound = errors.New("certstore: certificate not found")

// ServingRefs are the per-domain references repointed at promotion time.
var ServingRefs = []string{"cert.pem", "chain.pem", "fullchain.pem", "privkey.pem"}

const certFile = "cert.pem"

// Bundle is an observed certificate: this system never creates or renews one,
// it only reads what the renewal process left behind.
type Bundle struct {
	Domain  string
	Dir     string    // resolved directory holding the certificate material
	ModTime time.Time // of the resolved certificate file
	Digest  string    // public-key digest, lowercase hex
}

// AgeSeconds returns the bundle's age in whole seconds.
func (b *Bundle) AgeSeconds(now time.Time) int64 {
	return int64(now.Sub(b.ModTime) / time.Second)
}

// Store reads certificate bundles from the live directory and publishes
// serving references under the serving directory.
type Store struct {
	LiveDir    string
	ServingDir string
	Log        logr.Logger
}

// Inspect locates the certificate for a domain, trying the "www.<domain>"
// live directory before "<domain>". Symlinks are resolved before the
// modification time is read, so the age reflects the real file. Returns
// ErrNotFound when neither convention yields a readable certificate.
func (s *Store) Inspect(domain string) (*Bundle, error) {
	for _, cand := range []string{"www." + domain, domain} {
		resolved, err := filepath.EvalSymlinks(filepath.Join(s.LiveDir, cand, certFile))
		if err != nil {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil {
			continue
		}
		digest, err := dane.CertificateDigest(resolved)
		if err != nil {
			return nil, fmt.Errorf("inspecting %s: %w", domain, err)
		}
		s.Log.V(1).Info("certificate resolved", "domain", domain, "path", resolved)
		return &Bundle{
			Domain:  domain,
			Dir:     filepath.Dir(resolved),
			ModTime: info.ModTime(),
			Digest:  digest,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, domain)
}

// Promote atomically repoints the serving references for the bundle's domain
// at its certificate material. Each reference is replaced through a temporary
// symlink and a rename, so the web server never observes a dangling path.
func (s *Store) Promote(b *Bundle) error {
	dir := filepath.Join(s.ServingDir, b.Domain)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("promoting %s: %w", b.Domain, err)
	}
	for _, name := range ServingRefs {
		target := filepath.Join(b.Dir, name)
		if resolved, err := filepath.EvalSymlinks(target); err == nil {
			target = resolved
		}
		link := filepath.Join(dir, name)
		tmp := link + ".next"
		_ = os.Remove(tmp)
		if err := os.Symlink(target, tmp); err != nil {
			return fmt.Errorf("promoting %s: %w", b.Domain, err)
		}
		if err := os.Rename(tmp, link); err != nil {
			return fmt.Errorf("promoting %s: %w", b.Domain, err)
		}
	}
	s.Log.Info("serving references promoted", "domain", b.Domain, "dir", b.Dir)
	return nil
}
