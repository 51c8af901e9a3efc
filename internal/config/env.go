package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file.
//
// Search order (stops at the first file found):
//  1. Explicit paths passed as arguments (test use).
//  2. Directory of the running executable, walking up to 3 levels.
//  3. Current working directory — fallback for `go run ./cmd/tripwise`.
//
// If no .env is found anywhere, the program continues with system env vars.
func LoadEnv(paths ...string) {
	if len(paths) > 0 {
		if err := godotenv.Load(paths...); err != nil {
			log.Printf("[Config] No .env file at specified path(s), using system environment variables")
		}
		return
	}

	candidates := resolveEnvCandidates()
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				log.Printf("[Config] Failed to load .env from %s: %v", p, err)
			} else {
				log.Printf("[Config] Loaded .env from %s", p)
			}
			return
		}
	}

	log.Printf("[Config] No .env file found (searched: %v), using system environment variables", candidates)
}

// resolveEnvCandidates returns the ordered list of .env paths to probe.
func resolveEnvCandidates() []string {
	var candidates []string
	seen := map[string]bool{}

	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			candidates = append(candidates, p)
		}
	}

	if exe, err := os.Executable(); err == nil {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			exe = real
		}
		dir := filepath.Dir(exe)
		for i := 0; i <= 3; i++ {
			add(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break // reached filesystem root
			}
			dir = parent
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		add(filepath.Join(cwd, ".env"))
	}

	return candidates
}

// String returns the env var value or def when unset/empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as int, or def on absence or parse failure.
// Invalid values are logged, matching the startup diagnostics style.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] Invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

// Bool returns true iff the env var is the literal string "true".
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true"
}

// DurationMS reads an integer env var expressed in milliseconds.
func DurationMS(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("[Config] Invalid %s=%q, using default %v", key, v, def)
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// Config captures every recognized environment variable in one place so the
// rest of the program never touches os.Getenv directly.
type Config struct {
	Port     string
	LogLevel string

	SessionKind      string // "memory" or "remote"
	SessionTTL       time.Duration
	SessionTimeout   time.Duration
	SessionRemoteURL string

	LedgerSuccessTTL   time.Duration
	LedgerHTTPBlockTTL time.Duration
	LedgerSchemaTTL    time.Duration
	LedgerFailTTL      time.Duration

	TurnTimeout       time.Duration
	ClassifierTimeout time.Duration
	PolicyTimeout     time.Duration

	DeepResearchEnabled bool

	TavilyAPIKey        string
	OpenTripMapAPIKey   string
	AmadeusClientID     string
	AmadeusClientSecret string
	VectaraAPIKey       string
	VectaraCorpusKey    string
}

// FromEnv builds a Config from the process environment, applying the
// defaults from the external-interface contract.
func FromEnv() Config {
	cfg := Config{
		Port:     String("PORT", "8080"),
		LogLevel: String("LOG_LEVEL", "info"),

		SessionKind:      String("SESSION_KIND", "memory"),
		SessionTTL:       time.Duration(Int("SESSION_TTL_SEC", 3600)) * time.Second,
		SessionTimeout:   DurationMS("SESSION_TIMEOUT_MS", 1500*time.Millisecond),
		SessionRemoteURL: String("SESSION_REMOTE_URL", "redis://localhost:6379/0"),

		LedgerSuccessTTL:   DurationMS("LEDGER_SUCCESS_TTL_MS", 300*time.Second),
		LedgerHTTPBlockTTL: DurationMS("LEDGER_HTTP_BLOCK_TTL_MS", 900*time.Second),
		LedgerSchemaTTL:    DurationMS("LEDGER_ZOD_FAIL_TTL_MS", 300*time.Second),
		LedgerFailTTL:      DurationMS("LEDGER_FAIL_TTL_MS", 120*time.Second),

		TurnTimeout:       DurationMS("TURN_TIMEOUT_MS", 20*time.Second),
		ClassifierTimeout: DurationMS("CLASSIFIER_TIMEOUT_MS", 3*time.Second),
		PolicyTimeout:     clampDuration(DurationMS("POLICY_TIMEOUT_MS", 15*time.Second), 2*time.Second, 90*time.Second),

		DeepResearchEnabled: Bool("DEEP_RESEARCH_ENABLED", true),

		TavilyAPIKey:        os.Getenv("TAVILY_API_KEY"),
		OpenTripMapAPIKey:   os.Getenv("OPENTRIPMAP_API_KEY"),
		AmadeusClientID:     os.Getenv("AMADEUS_CLIENT_ID"),
		AmadeusClientSecret: os.Getenv("AMADEUS_CLIENT_SECRET"),
		VectaraAPIKey:       os.Getenv("VECTARA_API_KEY"),
		VectaraCorpusKey:    String("VECTARA_CORPUS_KEY", "travel-policies"),
	}
	return cfg
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.SessionKind != "memory" && c.SessionKind != "remote" {
		return fmt.Errorf("SESSION_KIND must be \"memory\" or \"remote\", got %q", c.SessionKind)
	}
	if c.TurnTimeout < time.Second {
		return fmt.Errorf("TURN_TIMEOUT_MS too small: %v", c.TurnTimeout)
	}
	return nil
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
