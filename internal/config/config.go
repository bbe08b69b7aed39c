package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the namespace for environment overrides. Each whitelisted
// file key maps to exactly one variable, e.g. HOSTSWEEP_LOOKBACK_HOURS.
const EnvPrefix = "HOSTSWEEP_"

// DefaultPath is where Resolve looks when no config file is named.
// A missing file here is fine; a missing explicitly named file is not.
const DefaultPath = "/etc/hostsweep/hostsweep.conf"

type Config struct {
	LookbackHours        int
	Parallel             bool
	Paranoid             bool
	TimeoutShortSec      int
	TimeoutMediumSec     int
	TimeoutLongSec       int
	CommonPorts          []int
	NotifyThreshold      int
	HighRiskThreshold    int
	NotifyEmail          string
	SMTPServer           string
	SMTPFrom             string
	WebhookURL           string
	RetryMaxAttempts     int
	RetryBaseDelaySec    int
	RetryBackoffFactor   int
	RetryMaxDelaySec     int
	ReportDir            string
	BaselineDir          string
	LockDir              string
	RequireRoot          bool
	HistoryEnabled       bool
	HistoryRetentionDays int
	LogFormat            string
}

func Default() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	return Config{
		LookbackHours:        24,
		Parallel:             true,
		Paranoid:             false,
		TimeoutShortSec:      15,
		TimeoutMediumSec:     60,
		TimeoutLongSec:       300,
		CommonPorts:          []int{22, 53, 80, 123, 443, 853, 993, 995},
		NotifyThreshold:      40,
		HighRiskThreshold:    50,
		RetryMaxAttempts:     3,
		RetryBaseDelaySec:    2,
		RetryBackoffFactor:   2,
		RetryMaxDelaySec:     30,
		SMTPFrom:             "hostsweep@" + host,
		ReportDir:            "/var/lib/hostsweep/reports",
		BaselineDir:          "/var/lib/hostsweep/baseline",
		LockDir:              os.TempDir(),
		RequireRoot:          true,
		HistoryEnabled:       true,
		HistoryRetentionDays: 90,
		LogFormat:            "json",
	}
}

func (c Config) TimeoutShort() time.Duration  { return time.Duration(c.TimeoutShortSec) * time.Second }
func (c Config) TimeoutMedium() time.Duration { return time.Duration(c.TimeoutMediumSec) * time.Second }
func (c Config) TimeoutLong() time.Duration   { return time.Duration(c.TimeoutLongSec) * time.Second }

func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySec) * time.Second
}

func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySec) * time.Second
}

// CommonPortsString renders the port set the way it appears in the summary
// and the config file: comma separated, declared order.
func (c Config) CommonPortsString() string {
	parts := make([]string, 0, len(c.CommonPorts))
	for _, p := range c.CommonPorts {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}

type warnFunc func(format string, args ...interface{})

type setter func(c *Config, value string, warn warnFunc)

func intSetter(dst func(*Config) *int, key string, min, max, def int) setter {
	return func(c *Config, value string, warn warnFunc) {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			warn("%s: non-integer value %q, using default %d", key, value, def)
			*dst(c) = def
			return
		}
		if n < min || n > max {
			warn("%s: value %d outside %d..%d, using default %d", key, n, min, max, def)
			*dst(c) = def
			return
		}
		*dst(c) = n
	}
}

func boolSetter(dst func(*Config) *bool) setter {
	return func(c *Config, value string, _ warnFunc) {
		*dst(c) = parseBool(value)
	}
}

func stringSetter(dst func(*Config) *string) setter {
	return func(c *Config, value string, _ warnFunc) {
		*dst(c) = strings.TrimSpace(value)
	}
}

func pathSetter(dst func(*Config) *string, key string) setter {
	return func(c *Config, value string, warn warnFunc) {
		value = strings.TrimSpace(value)
		if value == "" || !filepath.IsAbs(value) {
			warn("%s: %q is not an absolute path, keeping %s", key, value, *dst(c))
			return
		}
		*dst(c) = filepath.Clean(value)
	}
}

// setters is the whole config file surface. Values are never evaluated;
// each key dispatches to a typed setter and nothing else.
var setters = map[string]setter{
	"LOOKBACK_HOURS": intSetter(func(c *Config) *int { return &c.LookbackHours }, "LOOKBACK_HOURS", 1, 168, 24),
	"PARALLEL":       boolSetter(func(c *Config) *bool { return &c.Parallel }),
	"PARANOID":       boolSetter(func(c *Config) *bool { return &c.Paranoid }),
	"TIMEOUT_SHORT":  intSetter(func(c *Config) *int { return &c.TimeoutShortSec }, "TIMEOUT_SHORT", 1, 300, 15),
	"TIMEOUT_MEDIUM": intSetter(func(c *Config) *int { return &c.TimeoutMediumSec }, "TIMEOUT_MEDIUM", 1, 900, 60),
	"TIMEOUT_LONG":   intSetter(func(c *Config) *int { return &c.TimeoutLongSec }, "TIMEOUT_LONG", 1, 3600, 300),
	"COMMON_PORTS":   setCommonPorts,
	"NOTIFY_THRESHOLD": intSetter(func(c *Config) *int { return &c.NotifyThreshold },
		"NOTIFY_THRESHOLD", 0, 100, 40),
	"HIGH_RISK_THRESHOLD": intSetter(func(c *Config) *int { return &c.HighRiskThreshold },
		"HIGH_RISK_THRESHOLD", 0, 100, 50),
	"NOTIFY_EMAIL":         stringSetter(func(c *Config) *string { return &c.NotifyEmail }),
	"SMTP_SERVER":          stringSetter(func(c *Config) *string { return &c.SMTPServer }),
	"SMTP_FROM":            stringSetter(func(c *Config) *string { return &c.SMTPFrom }),
	"WEBHOOK_URL":          stringSetter(func(c *Config) *string { return &c.WebhookURL }),
	"RETRY_MAX_ATTEMPTS":   intSetter(func(c *Config) *int { return &c.RetryMaxAttempts }, "RETRY_MAX_ATTEMPTS", 1, 10, 3),
	"RETRY_BASE_DELAY":     intSetter(func(c *Config) *int { return &c.RetryBaseDelaySec }, "RETRY_BASE_DELAY", 1, 60, 2),
	"RETRY_BACKOFF_FACTOR": intSetter(func(c *Config) *int { return &c.RetryBackoffFactor }, "RETRY_BACKOFF_FACTOR", 1, 10, 2),
	"RETRY_MAX_DELAY":      intSetter(func(c *Config) *int { return &c.RetryMaxDelaySec }, "RETRY_MAX_DELAY", 1, 600, 30),
	"REPORT_DIR":           pathSetter(func(c *Config) *string { return &c.ReportDir }, "REPORT_DIR"),
	"BASELINE_DIR":         pathSetter(func(c *Config) *string { return &c.BaselineDir }, "BASELINE_DIR"),
	"LOCK_DIR":             pathSetter(func(c *Config) *string { return &c.LockDir }, "LOCK_DIR"),
	"REQUIRE_ROOT":         boolSetter(func(c *Config) *bool { return &c.RequireRoot }),
	"HISTORY_ENABLED":      boolSetter(func(c *Config) *bool { return &c.HistoryEnabled }),
	"HISTORY_RETENTION_DAYS": intSetter(func(c *Config) *int { return &c.HistoryRetentionDays },
		"HISTORY_RETENTION_DAYS", 0, 3650, 90),
	"LOG_FORMAT": setLogFormat,
}

func setCommonPorts(c *Config, value string, warn warnFunc) {
	ports := []int{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 65535 {
			warn("COMMON_PORTS: dropping invalid port %q", part)
			continue
		}
		ports = append(ports, n)
	}
	if len(ports) == 0 {
		warn("COMMON_PORTS: no valid ports in %q, keeping default", value)
		return
	}
	c.CommonPorts = ports
}

func setLogFormat(c *Config, value string, warn warnFunc) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "json":
		c.LogFormat = "json"
	case "console":
		c.LogFormat = "console"
	default:
		warn("LOG_FORMAT: unknown format %q, using json", value)
		c.LogFormat = "json"
	}
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Resolve builds the effective configuration. Precedence, lowest to
// highest: built-in defaults, config file, environment, explicit flags.
// Warnings are returned for the caller to log. The only fatal condition
// is an explicitly named config file that cannot be read; a missing file
// at the default path is skipped.
func Resolve(path string, explicit bool, environ []string, flags map[string]string) (Config, []string, error) {
	cfg := Default()
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err != nil && explicit:
			return Config{}, nil, fmt.Errorf("read config %s: %w", path, err)
		case err != nil:
			// default path absent, nothing to merge
		default:
			applyFile(&cfg, string(raw), warn)
		}
	}

	applyEnviron(&cfg, environ, warn)
	applyFlags(&cfg, flags, warn)

	return cfg, warnings, nil
}

func applyFile(cfg *Config, raw string, warn warnFunc) {
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			warn("config line %d: not KEY=VALUE, ignored", i+1)
			continue
		}
		key = strings.TrimSpace(key)
		set, known := setters[key]
		if !known {
			warn("config line %d: unknown key %q, ignored", i+1, key)
			continue
		}
		set(cfg, unquote(strings.TrimSpace(value)), warn)
	}
}

func applyEnviron(cfg *Config, environ []string, warn warnFunc) {
	keys := make([]string, 0, len(environ))
	values := map[string]string{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(name, EnvPrefix)
		keys = append(keys, key)
		values[key] = value
	}
	sort.Strings(keys)
	for _, key := range keys {
		set, known := setters[key]
		if !known {
			warn("environment: unknown key %s%s, ignored", EnvPrefix, key)
			continue
		}
		set(cfg, values[key], warn)
	}
}

func applyFlags(cfg *Config, flags map[string]string, warn warnFunc) {
	keys := make([]string, 0, len(flags))
	for key := range flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		set, known := setters[key]
		if !known {
			warn("flag override: unknown key %q, ignored", key)
			continue
		}
		set(cfg, flags[key], warn)
	}
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
