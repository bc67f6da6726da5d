// Package shell invokes the collaborators as subprocesses, the way the host's
// cron-driven tooling expects: fire the command, check the exit code.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/hooks"
)

func init() {
	hooks.Register("shell", func(log logr.Logger, settings map[string]string) (hooks.Invoker, error) {
		return New(log, settings)
	})
}

// Invoker runs the collaborator commands via os/exec.
type Invoker struct {
	signZone  []string
	reloadDNS []string
	reloadWeb []string
	timeout   time.Duration
	log       logr.Logger
}

// New creates a shell invoker from the given settings map.
// Required settings: sign_zone, reload_dns, reload_web (whitespace-separated
// command lines). Optional settings: timeout (seconds, default 60).
func New(log logr.Logger, settings map[string]string) (*Invoker, error) {
	signZone, err := requiredCommand(settings, "sign_zone")
	if err != nil {
		return nil, err
	}
	reloadDNS, err := requiredCommand(settings, "reload_dns")
	if err != nil {
		return nil, err
	}
	reloadWeb, err := requiredCommand(settings, "reload_web")
	if err != nil {
		return nil, err
	}

	timeout := 60 * time.Second
	if v := settings["timeout"]; v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("shell: invalid timeout %q", v)
		}
		timeout = time.Duration(secs) * time.Second
	}

	return &Invoker{
		signZone:  signZone,
		reloadDNS: reloadDNS,
		reloadWeb: reloadWeb,
		timeout:   timeout,
		log:       log,
	}, nil
}

func requiredCommand(settings map[string]string, key string) ([]string, error) {
	argv := strings.Fields(settings[key])
	if len(argv) == 0 {
		return nil, fmt.Errorf("shell: missing required setting %q", key)
	}
	return argv, nil
}

func (v *Invoker) run(ctx context.Context, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("shell: %s: %w (output: %s)",
			strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// SignZone re-signs the domain's zone. The domain is appended as the final
// argument of the configured command.
func (v *Invoker) SignZone(ctx context.Context, domain string) error {
	v.log.Info("signing zone", "domain", domain)
	argv := append(append([]string{}, v.signZone...), domain)
	return v.run(ctx, argv)
}

// ReloadDNS reloads the authoritative DNS server.
func (v *Invoker) ReloadDNS(ctx context.Context) error {
	v.log.Info("reloading DNS server")
	return v.run(ctx, v.reloadDNS)
}

// ReloadWeb reloads the web-serving process.
func (v *Invoker) ReloadWeb(ctx context.Context) error {
	v.log.Info("reloading web server")
	return v.run(ctx, v.reloadWeb)
}
