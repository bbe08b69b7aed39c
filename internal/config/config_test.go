package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hostsweep.conf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestResolveDefaults(t *testing.T) {
	cfg, warnings, err := Resolve("", false, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if cfg.LookbackHours != 24 || !cfg.Parallel || cfg.Paranoid {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CommonPortsString() != "22,53,80,123,443,853,993,995" {
		t.Fatalf("unexpected default ports: %s", cfg.CommonPortsString())
	}
}

func TestResolvePrecedence(t *testing.T) {
	path := writeConfig(t, "LOOKBACK_HOURS=48\n")
	environ := []string{"HOSTSWEEP_LOOKBACK_HOURS=72"}
	flags := map[string]string{"LOOKBACK_HOURS": "96"}

	cfg, _, err := Resolve(path, true, environ, flags)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.LookbackHours != 96 {
		t.Fatalf("expected flag value 96 to win, got %d", cfg.LookbackHours)
	}

	cfg, _, err = Resolve(path, true, environ, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.LookbackHours != 72 {
		t.Fatalf("expected env value 72 to win over file, got %d", cfg.LookbackHours)
	}

	cfg, _, err = Resolve(path, true, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.LookbackHours != 48 {
		t.Fatalf("expected file value 48, got %d", cfg.LookbackHours)
	}
}

func TestResolveFileParsing(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"# comment",
		"",
		"PARANOID=yes",
		`WEBHOOK_URL="https://hooks.example.com/sweep"`,
		"SMTP_SERVER='mail.example.com:25'",
		"MYSTERY_KEY=1",
		"not a key value line",
	}, "\n"))

	cfg, warnings, err := Resolve(path, true, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !cfg.Paranoid {
		t.Fatalf("expected paranoid enabled")
	}
	if cfg.WebhookURL != "https://hooks.example.com/sweep" {
		t.Fatalf("expected double quotes stripped, got %q", cfg.WebhookURL)
	}
	if cfg.SMTPServer != "mail.example.com:25" {
		t.Fatalf("expected single quotes stripped, got %q", cfg.SMTPServer)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings (unknown key, bad line), got %v", warnings)
	}
}

func TestResolveInvalidNumericFallsBack(t *testing.T) {
	path := writeConfig(t, "TIMEOUT_LONG=eleven\nNOTIFY_THRESHOLD=900\n")
	cfg, warnings, err := Resolve(path, true, nil, nil)
	if err != nil {
		t.Fatalf("resolve must not fail on bad values: %v", err)
	}
	if cfg.TimeoutLongSec != 300 {
		t.Fatalf("expected default 300, got %d", cfg.TimeoutLongSec)
	}
	if cfg.NotifyThreshold != 40 {
		t.Fatalf("expected default 40 for out-of-range threshold, got %d", cfg.NotifyThreshold)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
}

func TestResolveExplicitMissingFileFatal(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.conf")
	if _, _, err := Resolve(missing, true, nil, nil); err == nil {
		t.Fatalf("expected error for explicitly named missing file")
	}
	if _, _, err := Resolve(missing, false, nil, nil); err != nil {
		t.Fatalf("default-path missing file must not fail: %v", err)
	}
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true, "On": true,
		"0": false, "false": false, "no": false, "off": false,
		"": false, "maybe": false,
	}
	for in, want := range cases {
		if got := parseBool(in); got != want {
			t.Fatalf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCommonPortsParsing(t *testing.T) {
	path := writeConfig(t, "COMMON_PORTS=22, 443, 70000, abc, 8080\n")
	cfg, warnings, err := Resolve(path, true, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.CommonPortsString() != "22,443,8080" {
		t.Fatalf("expected bad entries dropped, got %s", cfg.CommonPortsString())
	}
	if len(warnings) != 2 {
		t.Fatalf("expected a warning per dropped entry, got %v", warnings)
	}

	path = writeConfig(t, "COMMON_PORTS=abc\n")
	cfg, _, err = Resolve(path, true, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.CommonPortsString() != "22,53,80,123,443,853,993,995" {
		t.Fatalf("expected default ports restored, got %s", cfg.CommonPortsString())
	}
}

func TestRelativePathRejected(t *testing.T) {
	path := writeConfig(t, "REPORT_DIR=relative/reports\n")
	cfg, warnings, err := Resolve(path, true, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.ReportDir != "/var/lib/hostsweep/reports" {
		t.Fatalf("expected default report dir kept, got %s", cfg.ReportDir)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}

func TestLogFormatFallback(t *testing.T) {
	path := writeConfig(t, "LOG_FORMAT=xml\n")
	cfg, warnings, err := Resolve(path, true, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected json fallback, got %s", cfg.LogFormat)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}
