// Package catalog implements the pattern catalog: the configured set of
// string-matching rules used to classify key-value rows and JSON keys as
// in-scope for cleaning.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scope says which side of a key-value pair a rule inspects.
type Scope string

const (
	ScopeKey   Scope = "key"
	ScopeValue Scope = "value"
	ScopeBoth  Scope = "both"
)

// MatchKind selects the comparison a rule performs. All comparisons are
// case-insensitive.
type MatchKind string

const (
	MatchSubstring MatchKind = "substring"
	MatchPrefix    MatchKind = "prefix"
	// MatchLike is a SQL LIKE style wildcard: % matches any run of
	// characters, _ matches a single character.
	MatchLike MatchKind = "like"
)

// Category groups rules by intent. The cleaner's behavior depends on it:
// telemetry rows may be rotated instead of deleted, everything else matched
// is always deleted.
type Category string

const (
	CategoryExtension Category = "extension"
	CategoryTelemetry Category = "telemetry"
	CategoryTrial     Category = "trial"
	CategoryAuth      Category = "auth"
	CategoryCustom    Category = "custom"
)

// RemovalCategories are the categories whose matches must never survive an
// execute run. Telemetry is absent: it may be rotated in place.
var RemovalCategories = []Category{CategoryExtension, CategoryTrial, CategoryAuth}

// Rule is a single matching rule.
type Rule struct {
	Scope    Scope     `json:"scope" yaml:"scope"`
	Match    MatchKind `json:"match" yaml:"match"`
	Text     string    `json:"text" yaml:"text"`
	Category Category  `json:"category" yaml:"category"`

	// compiled LIKE pattern, set during validation for MatchLike rules
	re *regexp.Regexp
}

// Matches reports whether the rule matches the given key/value pair.
// Comparison is case-folded on both sides.
func (r Rule) Matches(key, value string) bool {
	switch r.Scope {
	case ScopeKey:
		return r.matchText(key)
	case ScopeValue:
		return r.matchText(value)
	default:
		return r.matchText(key) || r.matchText(value)
	}
}

func (r Rule) matchText(s string) bool {
	s = strings.ToLower(s)
	text := strings.ToLower(r.Text)
	switch r.Match {
	case MatchSubstring:
		return strings.Contains(s, text)
	case MatchPrefix:
		return strings.HasPrefix(s, text)
	case MatchLike:
		if r.re == nil {
			return false
		}
		return r.re.MatchString(s)
	}
	return false
}

// Catalog is a validated, ordered set of rules.
type Catalog struct {
	rules []Rule
}

type catalogFile struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// New builds a catalog from rules, validating each one. An empty pattern
// text, an unknown scope, match kind or category, or a duplicate rule is a
// fatal configuration error: rules apply globally, so a malformed catalog
// must stop the run before any file is touched.
func New(rules []Rule) (*Catalog, error) {
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Text) == "" {
			return nil, fmt.Errorf("catalog: rule %d: empty pattern text", i)
		}
		if r.Scope == "" {
			r.Scope = ScopeKey
		}
		switch r.Scope {
		case ScopeKey, ScopeValue, ScopeBoth:
		default:
			return nil, fmt.Errorf("catalog: rule %d: unknown scope %q", i, r.Scope)
		}
		switch r.Match {
		case MatchSubstring, MatchPrefix, MatchLike:
		default:
			return nil, fmt.Errorf("catalog: rule %d: unknown match kind %q", i, r.Match)
		}
		if r.Category == "" {
			r.Category = CategoryCustom
		}
		switch r.Category {
		case CategoryExtension, CategoryTelemetry, CategoryTrial, CategoryAuth, CategoryCustom:
		default:
			return nil, fmt.Errorf("catalog: rule %d: unknown category %q", i, r.Category)
		}
		if r.Match == MatchLike {
			re, err := compileLike(r.Text)
			if err != nil {
				return nil, fmt.Errorf("catalog: rule %d: %w", i, err)
			}
			r.re = re
		}

		id := fmt.Sprintf("%s|%s|%s|%s", r.Scope, r.Match, strings.ToLower(r.Text), r.Category)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("catalog: rule %d: duplicate rule %s %s %q", i, r.Scope, r.Match, r.Text)
		}
		seen[id] = struct{}{}
		out = append(out, r)
	}
	return &Catalog{rules: out}, nil
}

// Load reads a catalog from a JSON or YAML file, chosen by extension.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}

	var cf catalogFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
		}
	}

	if len(cf.Rules) == 0 {
		return nil, fmt.Errorf("catalog: %s contains no rules", path)
	}
	return New(cf.Rules)
}

// Rules returns the rules, optionally filtered by category.
func (c *Catalog) Rules(categories ...Category) []Rule {
	if len(categories) == 0 {
		out := make([]Rule, len(c.rules))
		copy(out, c.rules)
		return out
	}
	var out []Rule
	for _, r := range c.rules {
		for _, cat := range categories {
			if r.Category == cat {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Len returns the number of rules.
func (c *Catalog) Len() int { return len(c.rules) }

// MatchCategories returns the distinct categories of every rule matching the
// pair, in rule order. An empty slice means the pair is out of scope.
func (c *Catalog) MatchCategories(key, value string) []Category {
	var cats []Category
	for _, r := range c.rules {
		if !r.Matches(key, value) {
			continue
		}
		dup := false
		for _, have := range cats {
			if have == r.Category {
				dup = true
				break
			}
		}
		if !dup {
			cats = append(cats, r.Category)
		}
	}
	return cats
}

// compileLike translates a SQL LIKE pattern into an anchored regexp.
// Patterns are matched against already-lowercased input.
func compileLike(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^(?s)")
	for _, ch := range strings.ToLower(pattern) {
		switch ch {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid wildcard pattern %q: %w", pattern, err)
	}
	return re, nil
}
