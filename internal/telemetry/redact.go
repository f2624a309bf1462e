package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

// Mode controls how much free text a metrics record keeps.
type Mode string

const (
	// ModeFull keeps whole excerpts with PII masked.
	ModeFull Mode = "full"
	// ModeRedact keeps masked excerpts cut to excerptLimit runes.
	ModeRedact Mode = "redact"
	// ModeMinimal keeps no free text at all.
	ModeMinimal Mode = "minimal"
)

const excerptLimit = 280

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRedact:
		return ModeRedact, nil
	case ModeFull:
		return ModeFull, nil
	case ModeMinimal:
		return ModeMinimal, nil
	default:
		return "", fmt.Errorf("invalid metrics redaction mode %q", s)
	}
}

// Excerpt keys.
const (
	ExcerptQuestion    = "question"
	ExcerptReflections = "reflections"
	ExcerptPrompt      = "prompt"
	ExcerptResponse    = "response"
)

var piiPatterns = []struct {
	re   *regexp.Regexp
	mask string
}{
	{regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`), "[email]"},
	{regexp.MustCompile(`(?i)\bhttps?://\S+`), "[url]"},
	{regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`), "[phone]"},
	{regexp.MustCompile(`\b\d{5,}\b`), "[number]"},
}

// RedactPII masks emails, URLs, phone numbers, long digit runs and any of the
// given names.
func RedactPII(s string, names ...string) string {
	for _, p := range piiPatterns {
		s = p.re.ReplaceAllString(s, p.mask)
	}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if len([]rune(n)) < 2 {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(n) + `\b`)
		s = re.ReplaceAllString(s, "[name]")
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Excerpts builds the free-text part of a record for the given mode. The
// display name is masked wherever it appears.
func Excerpts(mode Mode, req domain.ReadingRequest, prompts domain.PromptsUsed, response string) map[string]string {
	if mode == ModeMinimal {
		return nil
	}
	raw := map[string]string{
		ExcerptQuestion:    req.Question,
		ExcerptReflections: req.Reflections,
		ExcerptPrompt:      prompts.User,
		ExcerptResponse:    response,
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == "" {
			continue
		}
		v = RedactPII(v, req.Personalization.DisplayName)
		if mode == ModeRedact {
			v = truncate(v, excerptLimit)
		}
		out[k] = v
	}
	return out
}

// HashUser returns a stable pseudonymous id for a user id.
func HashUser(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}
