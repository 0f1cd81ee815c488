package service

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	maxOptionalTags    = 5
	maxDerivedWordTags = 3
)

// achievementCategories maps lowercase spellings to the canonical category
// tag used by the achievement logic.
var achievementCategories = map[string]string{
	"science":   "science",
	"math":      "math",
	"reading":   "reading",
	"writing":   "writing",
	"nature":    "nature",
	"history":   "history",
	"geography": "geography",
	"art":       "art",
	"music":     "music",
	"kindness":  "kindness",
}

// NormalizeAchievementTags rewrites the requiredCategoryTags and optionalTags
// fields of a generation result document into the canonical shape: exactly
// one valid category tag (first valid entry wins) and up to five optional
// tags, derived from the learn-more tag list or, as a last resort, from word
// tokens of the response text. It never fails; if the document cannot be
// rewritten both lists are reset to empty. Applying it twice is a no-op.
func NormalizeAchievementTags(doc []byte) []byte {
	if len(doc) == 0 || !gjson.ValidBytes(doc) {
		return doc
	}

	required := []string{}
	if category := firstValidCategory(gjson.GetBytes(doc, "requiredCategoryTags")); category != "" {
		required = append(required, category)
	}

	optional := stringList(gjson.GetBytes(doc, "optionalTags"), maxOptionalTags)
	if len(optional) == 0 {
		optional = stringList(gjson.GetBytes(doc, "learnMore.tags"), maxOptionalTags)
	}
	if len(optional) == 0 {
		optional = wordTokens(gjson.GetBytes(doc, "responseText").String(), maxDerivedWordTags)
	}

	out, err := sjson.SetBytes(doc, "requiredCategoryTags", required)
	if err == nil {
		out, err = sjson.SetBytes(out, "optionalTags", optional)
	}
	if err != nil {
		out, _ = sjson.SetBytes(doc, "requiredCategoryTags", []string{})
		out, _ = sjson.SetBytes(out, "optionalTags", []string{})
	}
	return out
}

// firstValidCategory returns the canonical form of the first list entry that
// names a known category; later entries are discarded.
func firstValidCategory(list gjson.Result) string {
	var found string
	list.ForEach(func(_, item gjson.Result) bool {
		c := strings.ToLower(strings.TrimSpace(item.String()))
		if canonical, ok := achievementCategories[c]; ok {
			found = canonical
			return false
		}
		return true
	})
	return found
}

func stringList(list gjson.Result, max int) []string {
	out := []string{}
	list.ForEach(func(_, item gjson.Result) bool {
		s := strings.TrimSpace(item.String())
		if s != "" {
			out = append(out, s)
		}
		return len(out) < max
	})
	return out
}

// wordTokens derives tags from the response text: unique lowercase words of
// at least four letters, in order of appearance.
func wordTokens(text string, max int) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(text) {
		word = strings.ToLower(strings.Trim(word, ".,!?;:\"'“”‘’()[]"))
		if len(word) < 4 || !isAlpha(word) {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
		if len(out) >= max {
			break
		}
	}
	return out
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}
