package quality

import (
	"regexp"
	"strings"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

const (
	minSectionSentences = 2
	minSectionWords     = 15
)

var (
	markdownHeading = regexp.MustCompile(`^\s{0,3}#{1,6}\s+\S`)
	boldHeading     = regexp.MustCompile(`^\s*(\*\*|__)[^*_]+(\*\*|__)\s*:?\s*$`)
	sentenceRun     = regexp.MustCompile(`[^.!?]*\pL[^.!?]*[.!?]+`)
)

func isHeading(line string) bool {
	return markdownHeading.MatchString(line) || boldHeading.MatchString(line)
}

// splitSections cuts a narrative at heading lines. Without headings it falls
// back to blank-line separated paragraphs. Empty sections are dropped.
func splitSections(text string) []string {
	lines := strings.Split(text, "\n")

	hasHeadings := false
	for _, l := range lines {
		if isHeading(l) {
			hasHeadings = true
			break
		}
	}

	var sections []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			sections = append(sections, s)
		}
		cur.Reset()
	}

	for _, l := range lines {
		switch {
		case hasHeadings && isHeading(l):
			flush()
		case !hasHeadings && strings.TrimSpace(l) == "":
			flush()
		default:
			cur.WriteString(l)
			cur.WriteByte('\n')
		}
	}
	flush()
	return sections
}

func sectionComplete(s string) bool {
	return len(sentenceRun.FindAllString(s, -1)) >= minSectionSentences &&
		len(strings.Fields(s)) >= minSectionWords
}

// analyzeSpine scores the structural completeness of a narrative.
func analyzeSpine(text string) domain.SpineMetrics {
	sections := splitSections(text)
	m := domain.SpineMetrics{TotalSections: len(sections)}
	for _, s := range sections {
		if sectionComplete(s) {
			m.CompleteSections++
		}
	}
	return m
}
