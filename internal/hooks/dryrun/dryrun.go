// Package dryrun logs the collaborator calls without executing anything.
package dryrun

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/hooks"
)

func init() {
	hooks.Register("dryrun", func(log logr.Logger, _ map[string]string) (hooks.Invoker, error) {
		return &Invoker{log: log}, nil
	})
}

// Invoker reports what would run and succeeds.
type Invoker struct {
	log logr.Logger
}

func (v *Invoker) SignZone(_ context.Context, domain string) error {
	v.log.Info("dry-run: would sign zone", "domain", domain)
	return nil
}

func (v *Invoker) ReloadDNS(_ context.Context) error {
	v.log.Info("dry-run: would reload DNS server")
	return nil
}

func (v *Invoker) ReloadWeb(_ context.Context) error {
	v.log.Info("dry-run: would reload web server")
	return nil
}
