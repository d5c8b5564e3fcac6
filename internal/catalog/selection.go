package catalog

import "path"

// Pattern is a parsed selection pattern: `[!]?[~]?<streamGlob>.<propGlob>`.
type Pattern struct {
	Exclude    bool
	PII        bool
	StreamGlob string
	PropGlob   string
	raw        string
}

// ParsePattern parses a raw selection pattern string.
func ParsePattern(raw string) Pattern {
	p := Pattern{raw: raw}
	s := raw
	if len(s) > 0 && s[0] == '!' {
		p.Exclude = true
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '~' {
		p.PII = true
		s = s[1:]
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			p.StreamGlob = s[:i]
			p.PropGlob = s[i+1:]
			return p
		}
	}
	p.StreamGlob = s
	p.PropGlob = "*"
	return p
}

// Specificity is the pattern's literal-prefix length, summed over its
// stream and property globs: a longer literal prefix means a more
// specific pattern.
func (p Pattern) Specificity() int {
	return literalPrefixLen(p.StreamGlob) + literalPrefixLen(p.PropGlob)
}

func literalPrefixLen(glob string) int {
	for i := 0; i < len(glob); i++ {
		if glob[i] == '*' || glob[i] == '?' || glob[i] == '[' {
			return i
		}
	}
	return len(glob)
}

func globMatch(glob, s string) bool {
	ok, err := path.Match(glob, s)
	return err == nil && ok
}

// Scoreboard evaluates a parsed pattern list against a stream's
// properties, per the Catalog Engine selection rule: a stream is
// selected iff at least one non-exclusion pattern matches and no
// exclusion pattern matches; a property is selected under the same
// rule scoped to that property.
type Scoreboard struct {
	patterns []Pattern
}

func NewScoreboard(raw []string) Scoreboard {
	patterns := make([]Pattern, len(raw))
	for i, r := range raw {
		patterns[i] = ParsePattern(r)
	}
	return Scoreboard{patterns: patterns}
}

// StreamSelected reports whether any non-exclusion pattern's stream
// glob matches, and no whole-stream exclusion (propGlob == "*") does.
func (sb Scoreboard) StreamSelected(stream string) bool {
	included := false
	for _, p := range sb.patterns {
		if !globMatch(p.StreamGlob, stream) {
			continue
		}
		if p.Exclude {
			if p.PropGlob == "*" {
				return false
			}
			continue
		}
		included = true
	}
	return included
}

// PropertySelected reports whether property prop of stream is selected:
// at least one non-exclusion pattern matches (stream, prop) and no
// exclusion pattern matches (stream, prop).
func (sb Scoreboard) PropertySelected(stream, prop string) bool {
	included := false
	for _, p := range sb.patterns {
		if !globMatch(p.StreamGlob, stream) || !globMatch(p.PropGlob, prop) {
			continue
		}
		if p.Exclude {
			return false
		}
		included = true
	}
	return included
}

// PIIMatches reports whether any pattern marked with the '~' prefix
// matches (stream, prop), for collecting the PII-hash field set.
func (sb Scoreboard) PIIMatches(stream, prop string) bool {
	for _, p := range sb.patterns {
		if !p.PII {
			continue
		}
		if globMatch(p.StreamGlob, stream) && globMatch(p.PropGlob, prop) {
			return true
		}
	}
	return false
}
