package safety

import (
	"regexp"
	"strings"
)

// ProviderSafeFallback is reported when the narrative is not backend output.
const ProviderSafeFallback = "safe-fallback"

type crisisPattern struct {
	category string
	re       *regexp.Regexp
}

var crisisPatterns = []crisisPattern{
	{"self_harm", regexp.MustCompile(`(?i)\b(kill(ing)?|hurt(ing)?|harm(ing)?|cut(ting)?)\s+my\s*self\b`)},
	{"self_harm", regexp.MustCompile(`(?i)\bself[-\s]?harm`)},
	{"suicidal_ideation", regexp.MustCompile(`(?i)\bsuicid(e|al)\b`)},
	{"suicidal_ideation", regexp.MustCompile(`(?i)\b(end|take)\s+my\s+(own\s+)?life\b`)},
	{"suicidal_ideation", regexp.MustCompile(`(?i)\b(want|wish)\s+(to\s+)?(be\s+)?dead\b`)},
	{"suicidal_ideation", regexp.MustCompile(`(?i)\bno\s+reason\s+to\s+live\b`)},
	{"suicidal_ideation", regexp.MustCompile(`(?i)\bbetter\s+off\s+without\s+me\b`)},
	{"acute_danger", regexp.MustCompile(`(?i)\b(overdos(e|ing)|going\s+to\s+jump)\b`)},
	{"abuse", regexp.MustCompile(`(?i)\b(he|she|they)\s+(is|are|keeps?)\s+(hitting|beating|choking)\s+me\b`)},
}

// DetectCrisis scans free text for acute-distress signals and returns the
// first matching category, or "" when none match.
func DetectCrisis(texts ...string) string {
	joined := strings.Join(texts, "\n")
	if strings.TrimSpace(joined) == "" {
		return ""
	}
	for _, p := range crisisPatterns {
		if p.re.MatchString(joined) {
			return p.category
		}
	}
	return ""
}

// CrisisResponse is returned verbatim instead of a reading when a crisis
// signal is detected.
const CrisisResponse = `It sounds like you may be carrying something very heavy right now, and you deserve support from a real person instead of a card reading.

If you are in immediate danger, please contact your local emergency number. If you are thinking about harming yourself, you can reach a crisis line such as 988 in the US, or find a local line at https://findahelpline.com.

You are not alone, and reaching out is a sign of strength. When you feel ready, the cards will still be here.`
