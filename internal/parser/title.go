// Package parser derives stable contest identifiers from free-form contest
// names, native contest codes and solution video titles.
//
// Every function here is pure: the same input always yields the same output.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

// codePrefixLen is the length of the series prefix on CodeChef contest
// codes ("START172" -> "172").
const codePrefixLen = 5

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespace   = regexp.MustCompile(`\s+`)
	divisionRe   = regexp.MustCompile(`(?i)\(\s*Div\.?\s*(\d+)(?:\s*\+\s*Div\.?\s*(\d+))?\s*\)`)
)

// nameRule tries to derive an identifier from a contest name. ok is false
// when the rule does not apply and the next rule should be tried.
type nameRule func(name string) (id string, ok bool)

// nameRules holds the ordered rule table per platform. Platforms without an
// entry use the slug fallback.
var nameRules = map[models.Platform][]nameRule{
	models.PlatformCodeforces: roundRules("Codeforces"),
}

// CanonicalID derives the canonical identifier for a contest name on the
// given platform. Rules are evaluated in order and the first applicable one
// wins; when none applies the name is slugified.
func CanonicalID(platform models.Platform, name string) string {
	for _, rule := range nameRules[platform] {
		if id, ok := rule(name); ok {
			return id
		}
	}
	return Slugify(name)
}

// StripCodePrefix turns a CodeChef contest code into its canonical id by
// dropping the fixed-length series prefix.
func StripCodePrefix(code string) string {
	code = strings.TrimSpace(code)
	if len(code) <= codePrefixLen {
		return Slugify(code)
	}
	return code[codePrefixLen:]
}

// NativeSlug returns a platform-provided slug as the canonical id.
func NativeSlug(slug string) string {
	return strings.TrimSpace(slug)
}

// Slugify lowercases s, drops everything but ASCII letters, digits and
// whitespace, joins the remaining words with hyphens and trims stray hyphens.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), "-")
	return strings.Trim(s, "-")
}

// roundRules builds the educational and numbered round rules for a platform
// whose contest names look like "<Word> Round 998 (Div. 3)".
func roundRules(word string) []nameRule {
	lower := strings.ToLower(word)
	educationalRe := regexp.MustCompile(fmt.Sprintf(`(?i)Educational\s+%s\s+Round\s+#?(\d+)`, regexp.QuoteMeta(word)))
	roundRe := regexp.MustCompile(fmt.Sprintf(`(?i)%s\s+Round\s+#?(\d+)`, regexp.QuoteMeta(word)))

	educational := func(name string) (string, bool) {
		if !strings.Contains(strings.ToLower(name), "educational") {
			return "", false
		}
		m := educationalRe.FindStringSubmatch(name)
		if m == nil {
			// Educational marker without a round number: no round rule applies.
			return Slugify(name), true
		}
		return fmt.Sprintf("educational-%s-round-%s", lower, m[1]), true
	}

	round := func(name string) (string, bool) {
		m := roundRe.FindStringSubmatch(name)
		if m == nil {
			return "", false
		}
		return fmt.Sprintf("%s-round-%s", lower, m[1]) + divisionSuffix(name), true
	}

	return []nameRule{educational, round}
}

func divisionSuffix(name string) string {
	m := divisionRe.FindStringSubmatch(name)
	switch {
	case m == nil:
		return ""
	case m[2] != "":
		return "-div-1-plus-2"
	default:
		return "-div-" + m[1]
	}
}
