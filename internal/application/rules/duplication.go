// Package rules implements the exception-rule consistency engine: validated
// CRUD over the rule collections, scope resolution, fuzzy duplicate
// detection, optimistic-creation reconciliation, integrity checking, and
// error recovery coordination.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/streakworks/chainrules/internal/domain/rule"
)

// activeRuleSource supplies the active rules a detector compares against.
// Implemented by Store.
type activeRuleSource interface {
	ListActive(ctx context.Context) ([]rule.Rule, error)
}

// NormalizeName produces the canonical comparison key for rule names:
// lower-cased with every character that is not a Unicode letter or digit
// removed. Trimming, whitespace collapsing, and punctuation stripping all
// reduce to this; non-Latin word characters survive.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity computes the normalized-edit-distance similarity of two names:
// 1 - levenshtein(a,b)/max(len(a),len(b)) over their normalized forms.
// Two empty normalized names are identical (1.0).
func Similarity(a, b string) float64 {
	na := []rune(NormalizeName(a))
	nb := []rune(NormalizeName(b))
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(na, nb))/float64(longest)
}

// levenshtein computes the edit distance with the standard O(n*m) dynamic
// programming table, using two rolling rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// SimilarRule pairs a rule with its similarity to a candidate name.
type SimilarRule struct {
	Rule       rule.Rule
	Similarity float64
}

// DuplicationDetector flags exact and near-duplicate rule names and proposes
// alternatives before a new rule multiplies an existing one.
type DuplicationDetector struct {
	source activeRuleSource
}

// NewDuplicationDetector creates a detector over the given rule source.
func NewDuplicationDetector(source activeRuleSource) *DuplicationDetector {
	return &DuplicationDetector{source: source}
}

// CheckDuplication returns all active rules whose normalized name equals the
// normalized candidate. A rule with ID excludeID is skipped, which lets
// updates ignore the rule being renamed.
func (d *DuplicationDetector) CheckDuplication(ctx context.Context, name, excludeID string) ([]rule.Rule, error) {
	active, err := d.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	key := NormalizeName(name)
	var matches []rule.Rule
	for _, r := range active {
		if r.ID == excludeID {
			continue
		}
		if NormalizeName(r.Name) == key {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// FindSimilarRules returns active rules whose similarity to name lies in
// [threshold, 1.0). Exact matches are excluded; results are sorted by
// descending similarity.
func (d *DuplicationDetector) FindSimilarRules(ctx context.Context, name string, threshold float64) ([]SimilarRule, error) {
	active, err := d.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var similar []SimilarRule
	for _, r := range active {
		sim := Similarity(name, r.Name)
		if sim >= threshold && sim < 1.0 {
			similar = append(similar, SimilarRule{Rule: r, Similarity: sim})
		}
	}

	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].Similarity > similar[j].Similarity
	})
	return similar, nil
}

// suggestionThreshold is the similarity above which an existing rule is
// confidently "the same rule" for suggestion purposes.
const suggestionThreshold = 0.9

// SuggestExistingRule proposes an existing rule the user probably meant:
// an exact normalized match wins, otherwise the closest rule with
// similarity >= 0.9, otherwise nil.
func (d *DuplicationDetector) SuggestExistingRule(ctx context.Context, name string) (*rule.Rule, error) {
	exact, err := d.CheckDuplication(ctx, name, "")
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		r := exact[0]
		return &r, nil
	}

	similar, err := d.FindSimilarRules(ctx, name, suggestionThreshold)
	if err != nil {
		return nil, err
	}
	if len(similar) > 0 {
		r := similar[0].Rule
		return &r, nil
	}
	return nil, nil
}

// maxSuggestions caps how many alternative names are offered.
const maxSuggestions = 5

// Fixed variant sets for name suggestions, in preference order.
var (
	descriptiveSuffixes = []string{"(short)", "(extended)", "(backup)"}
	variantPrefixes     = []string{"Quick", "Brief", "Urgent"}
)

// GenerateNameSuggestions produces alternative names for base that do not
// collide (after normalization) with existingNames: numbered variants first,
// then bracketed qualifiers, then duration/urgency prefixes. At most five
// suggestions are returned.
func (d *DuplicationDetector) GenerateNameSuggestions(base string, existingNames []string) []string {
	taken := make(map[string]bool, len(existingNames))
	for _, n := range existingNames {
		taken[NormalizeName(n)] = true
	}

	var suggestions []string
	add := func(candidate string) {
		if len(suggestions) >= maxSuggestions {
			return
		}
		key := NormalizeName(candidate)
		if taken[key] {
			return
		}
		taken[key] = true
		suggestions = append(suggestions, candidate)
	}

	for i := 2; i <= 10; i++ {
		add(fmt.Sprintf("%s %d", base, i))
	}
	for _, suffix := range descriptiveSuffixes {
		add(base + " " + suffix)
	}
	for _, prefix := range variantPrefixes {
		add(prefix + " " + base)
	}

	return suggestions
}

// commonPatterns are frequently recurring rule archetypes, stored in
// normalized form. Matching one is a soft warning at creation time, never a
// blocking condition.
var commonPatterns = map[string]bool{
	"bathroombreak":  true,
	"restroombreak":  true,
	"toiletbreak":    true,
	"waterbreak":     true,
	"drinkwater":     true,
	"stretchbreak":   true,
	"phonecall":      true,
	"urgentcall":     true,
	"doorbell":       true,
	"emergency":      true,
	"familymatter":   true,
	"feelingunwell":  true,
	"equipmentissue": true,
}

// IsCommonPattern reports whether name matches a known rule archetype after
// normalization.
func (d *DuplicationDetector) IsCommonPattern(name string) bool {
	return commonPatterns[NormalizeName(name)]
}
