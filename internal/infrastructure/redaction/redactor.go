// Package redaction scrubs secrets from log output: values of secret
// variables tracked at resolution time, anything gitleaks recognizes as a
// credential, and operator-supplied patterns.
package redaction

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/reglet-dev/egress/internal/application/ports"
)

const placeholder = "[REDACTED]"

// Redactor handles sanitization of sensitive data.
// All fields are read-only after construction; tracked values are read
// through the provider on every call, so secrets resolved later are covered.
type Redactor struct {
	tracked          ports.SensitiveValueProvider
	gitleaksDetector *detect.Detector
	salt             string
	patterns         []*regexp.Regexp
	hashMode         bool
}

// Config holds the configuration for the Redactor.
type Config struct {
	// Tracked supplies exact values to scrub (resolved secret variables).
	Tracked ports.SensitiveValueProvider
	// Salt for hashing. If empty, hashes are deterministic but unsalted.
	Salt string
	// Custom patterns to redact (e.g. "INT-[A-Z0-9]{16}")
	Patterns []string
	// If true, replace with an HMAC instead of [REDACTED]
	HashMode bool
	// If true, skip the gitleaks rule set and use only the patterns
	DisableGitleaks bool
}

// New creates a new Redactor with the given configuration.
func New(cfg Config) (*Redactor, error) {
	r := &Redactor{
		tracked:  cfg.Tracked,
		hashMode: cfg.HashMode,
		salt:     cfg.Salt,
		patterns: make([]*regexp.Regexp, 0, len(cfg.Patterns)+len(defaultPatterns)),
	}

	if !cfg.DisableGitleaks {
		detector, err := newGitleaksDetector()
		if err != nil {
			return nil, err
		}
		r.gitleaksDetector = detector
	}

	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}

	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile custom pattern %s: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}

	return r, nil
}

// newGitleaksDetector builds a detector from gitleaks' bundled rule set.
func newGitleaksDetector() (*detect.Detector, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("failed to read gitleaks config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gitleaks config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate gitleaks config: %w", err)
	}

	return detect.NewDetector(cfg), nil
}

// ScrubString replaces sensitive content in input. Tracked values go first
// (longest first, so a secret containing another is replaced whole), then
// gitleaks findings, then regex patterns.
func (r *Redactor) ScrubString(input string) string {
	if input == "" {
		return ""
	}

	result := input

	if r.tracked != nil {
		secrets := r.tracked.AllValues()
		sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
		for _, secret := range secrets {
			if secret != "" && strings.Contains(result, secret) {
				result = strings.ReplaceAll(result, secret, r.replacement(secret))
			}
		}
	}

	if r.gitleaksDetector != nil {
		for _, finding := range r.gitleaksDetector.Detect(detect.Fragment{Raw: result}) {
			if finding.Secret == "" {
				continue
			}
			result = strings.ReplaceAll(result, finding.Secret, r.replacement(finding.Secret))
		}
	}

	for _, re := range r.patterns {
		result = re.ReplaceAllStringFunc(result, r.replacement)
	}

	return result
}

func (r *Redactor) replacement(secret string) string {
	if r.hashMode {
		return r.hash(secret)
	}
	return placeholder
}

// hash returns a truncated HMAC-SHA256 of the secret, formatted as
// [hmac:<16 hex chars>], so repeated occurrences can be correlated.
func (r *Redactor) hash(secret string) string {
	mac := hmac.New(sha256.New, []byte(r.salt))
	mac.Write([]byte(secret))
	return fmt.Sprintf("[hmac:%s]", hex.EncodeToString(mac.Sum(nil))[:16])
}

// defaultPatterns are always applied, with or without gitleaks.
var defaultPatterns = []string{
	// AWS Access Key ID
	`\b((?:AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16})\b`,
	// Generic Private Key Header
	`-----BEGIN [A-Z ]+ PRIVATE KEY-----`,
	// Github Token
	`gh[pousr]_[A-Za-z0-9_]{36,255}`,
	// Vault service token
	`\bhvs\.[A-Za-z0-9_-]{24,}\b`,
}
