package agent

import (
	"regexp"
	"slices"
	"strings"

	"github.com/m-mizutani/dossier/pkg/model"
)

var keywordFamilies = map[model.Category][]string{
	model.CategoryTemporal: {
		"most recent", "recent", "recently", "latest", "newest", "last", "current", "currently",
		"oldest", "earliest", "first", "when", "since", "before", "after", "timeline", "year",
	},
	model.CategorySemantic: {
		"about", "related to", "involving", "experience with", "challenging", "complex",
		"difficult", "impressive", "best", "interesting", "similar",
	},
	model.CategoryAggregation: {
		"how many", "count", "number of", "distribution", "most used", "most common",
		"breakdown", "total", "statistics",
	},
	model.CategoryDetailExpansion: {
		"more detail", "details", "tell me more", "elaborate", "explain", "link", "url", "website",
	},
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func init() {
	// Longer phrases claim their text first so "most recent" is not also
	// counted as "recent"
	for _, words := range keywordFamilies {
		slices.SortStableFunc(words, func(a, b string) int { return len(b) - len(a) })
	}
}

// Classify counts keyword occurrences per category in the question. A span of
// text counts toward at most one keyword of a family. It is a pure function;
// the result only informs routing and the prompt.
func Classify(question string) model.Hint {
	q := " " + strings.Join(strings.Fields(strings.ToLower(question)), " ") + " "
	hint := model.Hint{}

	for category, words := range keywordFamilies {
		if n := countPhrases(q, words); n > 0 {
			hint[category] = n
		}
	}

	if years := len(yearPattern.FindAllStringIndex(q, -1)); years > 0 {
		hint[model.CategoryTemporal] += years
	}
	return hint
}

// countPhrases counts whole-word occurrences of words in q, longest first,
// skipping matches overlapping an already counted one
func countPhrases(q string, words []string) int {
	covered := make([]bool, len(q))
	n := 0
	for _, w := range words {
		for _, start := range phraseIndexes(q, w) {
			end := start + len(w)
			if slices.Contains(covered[start:end], true) {
				continue
			}
			for i := start; i < end; i++ {
				covered[i] = true
			}
			n++
		}
	}
	return n
}

// phraseIndexes returns the start of every whole-word match so "last" does not
// match "elastic"
func phraseIndexes(q, phrase string) []int {
	var out []int
	idx := 0
	for idx < len(q) {
		i := strings.Index(q[idx:], phrase)
		if i < 0 {
			break
		}
		start := idx + i
		end := start + len(phrase)
		if start > 0 && !isWordByte(q[start-1]) && (end >= len(q) || !isWordByte(q[end])) {
			out = append(out, start)
			idx = end
			continue
		}
		idx = start + 1
	}
	return out
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
