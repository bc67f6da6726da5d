package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dane-manager.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	content := `live_dir: /etc/letsencrypt/live
serving_dir: /etc/ssl/dane
zone_dir: /var/lib/bind/zones
zone_file: "db.{domain}"
ports: [443, 8443]
lock_file: /tmp/dane.lock
concurrency: 4
enumerate_command: "certbot-domain-list --active"
hooks:
  provider: shell
  settings:
    sign_zone: "zonesign"
    reload_dns: "rndc reload"
    reload_web: "systemctl reload nginx"
`
	cfg, err := LoadFromPath(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LiveDir != "/etc/letsencrypt/live" {
		t.Errorf("expected live_dir '/etc/letsencrypt/live', got %q", cfg.LiveDir)
	}
	if cfg.ZoneFile != "db.{domain}" {
		t.Errorf("expected zone_file 'db.{domain}', got %q", cfg.ZoneFile)
	}
	if len(cfg.Ports) != 2 || cfg.Ports[0] != 443 || cfg.Ports[1] != 8443 {
		t.Errorf("expected ports [443 8443], got %v", cfg.Ports)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.Hooks.Provider != "shell" {
		t.Errorf("expected hooks provider 'shell', got %q", cfg.Hooks.Provider)
	}
	if cfg.Hooks.Settings["reload_dns"] != "rndc reload" {
		t.Errorf("expected reload_dns 'rndc reload', got %q", cfg.Hooks.Settings["reload_dns"])
	}
}

func TestLoadFromPath_Defaults(t *testing.T) {
	content := `live_dir: /etc/letsencrypt/live
serving_dir: /etc/ssl/dane
zone_dir: /var/lib/bind/zones
enumerate_command: "certbot-domain-list"
`
	cfg, err := LoadFromPath(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ZoneFile != "{domain}.zone" {
		t.Errorf("expected default zone_file, got %q", cfg.ZoneFile)
	}
	if len(cfg.Ports) != 1 || cfg.Ports[0] != 443 {
		t.Errorf("expected default ports [443], got %v", cfg.Ports)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("expected default concurrency 1, got %d", cfg.Concurrency)
	}
	if cfg.LockFile != "/run/yk-dane-manager.lock" {
		t.Errorf("expected default lock_file, got %q", cfg.LockFile)
	}
	if cfg.Hooks.Provider != "shell" {
		t.Errorf("expected default hooks provider 'shell', got %q", cfg.Hooks.Provider)
	}
}

func TestLoadFromPath_MissingRequired(t *testing.T) {
	content := `serving_dir: /etc/ssl/dane
zone_dir: /var/lib/bind/zones
enumerate_command: "certbot-domain-list"
`
	if _, err := LoadFromPath(writeConfig(t, content)); err == nil {
		t.Fatal("expected error for missing live_dir, got nil")
	}
}

func TestLoadFromPath_ExpandsEnv(t *testing.T) {
	t.Setenv("RELOAD_BIN", "/usr/sbin/rndc")
	content := `live_dir: /etc/letsencrypt/live
serving_dir: /etc/ssl/dane
zone_dir: /var/lib/bind/zones
enumerate_command: "certbot-domain-list"
hooks:
  settings:
    reload_dns: "${RELOAD_BIN} reload"
`
	cfg, err := LoadFromPath(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Hooks.Settings["reload_dns"] != "/usr/sbin/rndc reload" {
		t.Errorf("expected env expansion, got %q", cfg.Hooks.Settings["reload_dns"])
	}
}

func TestZonePath(t *testing.T) {
	cfg := &Config{ZoneDir: "/var/lib/bind/zones", ZoneFile: "db.{domain}"}
	want := "/var/lib/bind/zones/db.example.com"
	if got := cfg.ZonePath("example.com"); got != want {
		t.Errorf("ZonePath: got %q, want %q", got, want)
	}
}

func TestEnumerateArgv(t *testing.T) {
	cfg := &Config{EnumerateCommand: "certbot-domain-list --active"}
	argv := cfg.EnumerateArgv()
	if len(argv) != 2 || argv[0] != "certbot-domain-list" || argv[1] != "--active" {
		t.Errorf("EnumerateArgv: got %v", argv)
	}
}
