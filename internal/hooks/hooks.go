// Package hooks defines the external collaborators invoked after a durable
// zone mutation: the DNSSEC signer, the authoritative DNS server, and the
// web server. The rollover logic never depends on how they are reached.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// Invoker triggers the external collaborators. Each call is a single
// idempotent side effect; a failure is reportable, never fatal to the pass.
type Invoker interface {
	SignZone(ctx context.Context, domain string) error
	ReloadDNS(ctx context.Context) error
	ReloadWeb(ctx context.Context) error
}

// Factory is a constructor function that implementations register to create
// themselves.
type Factory func(log logr.Logger, settings map[string]string) (Invoker, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by implementation packages in their init() to
// self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("hooks: provider %q already registered", name))
	}
	factories[name] = f
}

// New looks up the named implementation in the registry and creates it.
func New(name string, log logr.Logger, settings map[string]string) (Invoker, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		names := make([]string, 0, len(factories))
		for n := range factories {
			names = append(names, n)
		}
		return nil, fmt.Errorf("unsupported hooks provider: %q (registered: %v)", name, names)
	}
	return f(log, settings)
}
