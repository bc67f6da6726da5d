package certstore

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"
)

// Enumerator lists the managed domains by querying the external
// certificate-management tool, one domain per output line.
type Enumerator struct {
	Command []string
	Log     logr.Logger
}

// Domains runs the listing command and returns its domains in order, minus
// blank lines, duplicates, and www aliases: a root domain and its www alias
// share one certificate and one pair of endpoints, so only the root is a unit
// of work.
func (e *Enumerator) Domains(ctx context.Context) ([]string, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("certstore: enumerate command not configured")
	}
	out, err := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("certstore: enumerating domains: %w", err)
	}

	seen := make(map[string]bool)
	var domains []string
	for _, raw := range strings.Split(string(out), "\n") {
		domain := strings.TrimSpace(raw)
		if domain == "" || strings.HasPrefix(domain, "www.") || seen[domain] {
			continue
		}
		seen[domain] = true
		domains = append(domains, domain)
	}
	e.Log.V(1).Info("domains enumerated", "count", len(domains))
	return domains, nil
}
