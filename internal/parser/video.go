package parser

import (
	"regexp"
	"slices"
	"strings"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
)

// titleSeparator splits a video title into the contest part and the rest.
const titleSeparator = "|"

var (
	nonWordRuns = regexp.MustCompile(`[^a-z0-9]+`)
	numeric     = regexp.MustCompile(`^\d+$`)
	glued       = regexp.MustCompile(`^div(\d+)$`)
)

// VideoMatch is the identifier derived from a video title. Platform is empty
// when no platform keyword was found in the title.
type VideoMatch struct {
	Platform models.Platform
	ID       string
}

// Empty reports whether nothing usable was derived.
func (m VideoMatch) Empty() bool {
	return m.ID == ""
}

type videoRule struct {
	keyword  string
	platform models.Platform
	derive   func(tokens []string) string
}

// videoRules are checked in order against the title seed; the first keyword
// found decides the platform.
var videoRules = []videoRule{
	{keyword: "codeforces", platform: models.PlatformCodeforces, derive: codeforcesVideoID},
	{keyword: "leetcode", platform: models.PlatformLeetCode, derive: leetcodeVideoID},
	{keyword: "codechef", platform: models.PlatformCodeChef, derive: codechefVideoID},
}

// VideoSeed returns the lowercased, trimmed part of a title before the
// first separator.
func VideoSeed(title string) string {
	seed, _, _ := strings.Cut(title, titleSeparator)
	return strings.ToLower(strings.TrimSpace(seed))
}

// VideoContestID derives the candidate contest identifier for a solution
// video title.
func VideoContestID(title string) VideoMatch {
	seed := VideoSeed(title)
	if seed == "" {
		return VideoMatch{}
	}

	tokens := tokenize(seed)
	for _, rule := range videoRules {
		if strings.Contains(seed, rule.keyword) {
			return VideoMatch{Platform: rule.platform, ID: rule.derive(tokens)}
		}
	}

	return VideoMatch{ID: Slugify(seed)}
}

func tokenize(seed string) []string {
	return strings.Fields(nonWordRuns.ReplaceAllString(seed, " "))
}

// codeforcesVideoID mirrors the contest name rules on tokenized text:
// "educational codeforces round 173" and "codeforces round 998 div 3".
func codeforcesVideoID(tokens []string) string {
	round := numberAfter(tokens, "round")

	if round != "" && slices.Contains(tokens, "educational") {
		return "educational-codeforces-round-" + round
	}
	if round != "" {
		return "codeforces-round-" + round + divisionTokens(tokens)
	}

	rest := make([]string, 0, len(tokens))
	dropped := false
	for _, tok := range tokens {
		if tok == "codeforces" && !dropped {
			dropped = true
			continue
		}
		rest = append(rest, tok)
	}
	if len(rest) == 0 {
		return "codeforces"
	}
	return "codeforces-" + strings.Join(rest, "-")
}

// leetcodeVideoID drops everything up to the platform word and keeps the
// words through the contest number: "leetcode weekly contest 402 all
// solutions" -> "weekly-contest-402".
func leetcodeVideoID(tokens []string) string {
	start := 0
	for i, tok := range tokens {
		if strings.Contains(tok, "leetcode") {
			start = i + 1
			break
		}
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens[start:] {
		out = append(out, tok)
		if numeric.MatchString(tok) {
			break
		}
	}
	return strings.Join(out, "-")
}

// codechefVideoID rebuilds the native contest code from the third word:
// "codechef starters 172" -> "START172".
func codechefVideoID(tokens []string) string {
	if len(tokens) < 3 {
		return ""
	}
	return "START" + tokens[2]
}

func divisionTokens(tokens []string) string {
	var divs []string
	for i, tok := range tokens {
		if m := glued.FindStringSubmatch(tok); m != nil {
			divs = append(divs, m[1])
			continue
		}
		if tok == "div" && i+1 < len(tokens) && numeric.MatchString(tokens[i+1]) {
			divs = append(divs, tokens[i+1])
		}
	}

	switch len(divs) {
	case 0:
		return ""
	case 1:
		return "-div-" + divs[0]
	default:
		return "-div-1-plus-2"
	}
}

func numberAfter(tokens []string, word string) string {
	for i, tok := range tokens {
		if tok == word && i+1 < len(tokens) && numeric.MatchString(tokens[i+1]) {
			return tokens[i+1]
		}
	}
	return ""
}
