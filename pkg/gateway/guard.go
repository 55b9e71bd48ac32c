package gateway

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// GuardConfig carries the Input Guard's budgets. All fields have documented
// defaults (spec §4.1); a zero or negative field is replaced by its default
// by withDefaults, which Guard applies at the start of every call.
type GuardConfig struct {
	MaxRaw     int // default 10,000 bytes
	Window     int // default 500 bytes
	PatternCap int // default 500 bytes
	VectorCap  int // default 1,000 bytes
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxRaw:     10000,
		Window:     500,
		PatternCap: 500,
		VectorCap:  1000,
	}
}

func (c GuardConfig) withDefaults() GuardConfig {
	d := DefaultGuardConfig()
	if c.MaxRaw <= 0 {
		c.MaxRaw = d.MaxRaw
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.PatternCap <= 0 {
		c.PatternCap = d.PatternCap
	}
	if c.VectorCap <= 0 {
		c.VectorCap = d.VectorCap
	}
	return c
}

// guardSignature is a well-known attack signature detected by step 4 of the
// guard. Each carries a fixed confidence and class; the first match
// short-circuits the rest of the pipeline.
type guardSignature struct {
	re         *regexp.Regexp
	class      FailureClass
	confidence float64
	detail     string
}

// Load-time only: none of these patterns contain ".*" adjacent to an
// alternation group of size >= 2, so the structural ReDoS check in
// patterns.go has nothing to reject here.
var guardSignatures = []guardSignature{
	{regexp.MustCompile(`(?i)\b(select|union|insert|update|delete|drop)\b.{0,40}\b(from|into|table)\b.{0,60}(--|;|#|'\s*or\s*'1'\s*=\s*'1)`), ClassSQLInjection, 0.90, "SQL keywords combined with a statement terminator"},
	{regexp.MustCompile(`(?i)'\s*or\s*'?1'?\s*=\s*'?1`), ClassSQLInjection, 0.90, "classic SQL tautology"},
	{regexp.MustCompile(`(?i)<script[\s>]`), ClassXSS, 0.90, "script tag"},
	{regexp.MustCompile(`(?i)javascript:\s*\S`), ClassXSS, 0.80, "javascript: URI"},
	{regexp.MustCompile(`(\.\./){2,}`), ClassPathTraversal, 0.85, "repeated directory traversal sequence"},
	{regexp.MustCompile(`(?i)(;|\|\||&&)\s*(rm|curl|wget|nc|bash|sh|chmod|cat)\b`), ClassCommandInjection, 0.85, "shell metacharacter followed by a well-known binary"},
}

// GuardResult is the outcome of the Input Guard: either a terminal Verdict
// (guard short-circuited) or kept text truncated for the next stages.
type GuardResult struct {
	Verdict         *Verdict // non-nil if terminal
	PatternText     string   // truncated to PatternCap, for C2
	VectorText      string   // truncated to VectorCap, for C3
	NormalizedText  string   // full NFKC-normalized text, used for cache keying
}

// Guard runs the Input Guard (C1). It never returns an error: every failure
// mode is converted into a terminal Verdict per spec §7.
func Guard(raw string, cfg GuardConfig) GuardResult {
	cfg = cfg.withDefaults()

	// NFKC-normalize before any other signal so homoglyph/compatibility
	// variants collapse to the same behavior as their canonical form.
	text := norm.NFKC.String(raw)

	if strings.TrimSpace(text) == "" {
		v := allowVerdict(1, "guard_empty", 0.10)
		return GuardResult{Verdict: &v}
	}

	if len(text) > cfg.MaxRaw {
		v := Verdict{
			Action:       ActionBlock,
			TierUsed:     1,
			Method:       "guard_pathological",
			FailureClass: ClassPathologicalInput,
			Severity:     SeverityHigh,
			Confidence:   0.70,
			Explanation:  "input exceeds maximum raw length",
		}
		return GuardResult{Verdict: &v}
	}

	window := text
	if len(window) > cfg.Window {
		window = window[:cfg.Window]
	}
	if len(window) >= 50 {
		ratio, distinct := charFrequencyProfile(window)
		if ratio > 0.80 || distinct < 5 {
			v := Verdict{
				Action:       ActionBlock,
				TierUsed:     1,
				Method:       "guard_pathological",
				FailureClass: ClassPathologicalInput,
				Severity:     SeverityHigh,
				Confidence:   0.95,
				Explanation:  "low character diversity, likely ReDoS or DoS probe",
			}
			return GuardResult{Verdict: &v}
		}
	}

	for _, sig := range guardSignatures {
		if sig.re.MatchString(text) {
			v := Verdict{
				Action:       ActionBlock,
				TierUsed:     1,
				Method:       "guard_signature",
				FailureClass: sig.class,
				Severity:     SeverityCritical,
				Confidence:   sig.confidence,
				Explanation:  sig.detail,
			}
			return GuardResult{Verdict: &v}
		}
	}

	patternText := text
	if len(patternText) > cfg.PatternCap {
		patternText = patternText[:cfg.PatternCap]
	}
	vectorText := text
	if len(vectorText) > cfg.VectorCap {
		vectorText = vectorText[:cfg.VectorCap]
	}

	return GuardResult{
		PatternText:    patternText,
		VectorText:     vectorText,
		NormalizedText: text,
	}
}

// charFrequencyProfile returns the max single-byte frequency ratio and the
// count of distinct bytes in s. Operating on bytes (not runes) keeps this
// O(n) with a fixed-size table and matches the "cheap signal" intent of
// spec §4.1 step 3 — it must run before any regex, so it must not itself
// risk superlinear cost.
func charFrequencyProfile(s string) (ratio float64, distinct int) {
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	max := 0
	for _, c := range counts {
		if c > 0 {
			distinct++
		}
		if c > max {
			max = c
		}
	}
	if len(s) == 0 {
		return 0, 0
	}
	return float64(max) / float64(len(s)), distinct
}
