package rules

import (
	"context"
	"fmt"
	"testing"

	"github.com/streakworks/chainrules/internal/domain/rule"
)

// staticSource is a fixed rule collection for detector tests.
type staticSource []rule.Rule

func (s staticSource) ListActive(_ context.Context) ([]rule.Rule, error) {
	var active []rule.Rule
	for _, r := range s {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func activeRule(id, name string) rule.Rule {
	return rule.Rule{ID: id, Name: name, Type: rule.TypePauseOnly, Scope: rule.ScopeGlobal, IsActive: true}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bathroom Break", "bathroombreak"},
		{"  bathroom   break  ", "bathroombreak"},
		{"Bathroom-Break!", "bathroombreak"},
		{"BATHROOM_BREAK", "bathroombreak"},
		{"Rule 2", "rule2"},
		{"Café-Pause", "cafépause"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	t.Run("identical after normalization", func(t *testing.T) {
		if got := Similarity("Bathroom Break", "bathroom-break"); got != 1.0 {
			t.Fatalf("similarity = %v, want 1.0", got)
		}
	})

	t.Run("both empty", func(t *testing.T) {
		if got := Similarity("!!!", "---"); got != 1.0 {
			t.Fatalf("similarity = %v, want 1.0", got)
		}
	})

	t.Run("symmetry", func(t *testing.T) {
		a, b := "Restroom break", "Bathroom break"
		if Similarity(a, b) != Similarity(b, a) {
			t.Fatal("similarity is not symmetric")
		}
	})

	t.Run("restroom vs bathroom", func(t *testing.T) {
		// normalized forms differ in 4 of 13 characters: 1 - 4/13
		got := Similarity("Restroom break", "Bathroom break")
		if got < 0.69 || got > 0.70 {
			t.Fatalf("similarity = %v, want ~0.692", got)
		}
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		if got := Similarity("Bathroom break", "Emergency"); got > 0.4 {
			t.Fatalf("similarity = %v, want low", got)
		}
	})
}

func TestCheckDuplication(t *testing.T) {
	detector := NewDuplicationDetector(staticSource{
		activeRule("r1", "Bathroom Break"),
		activeRule("r2", "Phone call"),
		{ID: "r3", Name: "bathroom-break", Type: rule.TypePauseOnly, Scope: rule.ScopeGlobal, IsActive: false},
	})

	matches, err := detector.CheckDuplication(context.Background(), "  bathroom break ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "r1" {
		t.Fatalf("matches = %+v, want only r1 (inactive rules are ignored)", matches)
	}

	// The rule being renamed does not collide with itself
	matches, err = detector.CheckDuplication(context.Background(), "Bathroom Break", "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches = %+v, want none with r1 excluded", matches)
	}
}

func TestFindSimilarRules(t *testing.T) {
	detector := NewDuplicationDetector(staticSource{
		activeRule("r1", "Bathroom break"),
		activeRule("r2", "Restroom break"),
		activeRule("r3", "Emergency"),
	})
	ctx := context.Background()

	t.Run("threshold is inclusive", func(t *testing.T) {
		similar, err := detector.FindSimilarRules(ctx, "Bathroom break", 0.69)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(similar) != 1 || similar[0].Rule.ID != "r2" {
			t.Fatalf("similar = %+v, want only r2", similar)
		}
	})

	t.Run("below threshold excluded", func(t *testing.T) {
		similar, err := detector.FindSimilarRules(ctx, "Bathroom break", 0.70)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(similar) != 0 {
			t.Fatalf("similar = %+v, want none above 0.70", similar)
		}
	})

	t.Run("exact match excluded", func(t *testing.T) {
		similar, err := detector.FindSimilarRules(ctx, "bathroom-break", 0.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, s := range similar {
			if s.Rule.ID == "r1" {
				t.Fatal("exact normalized match must not appear in similar results")
			}
		}
	})

	t.Run("sorted by descending similarity", func(t *testing.T) {
		similar, err := detector.FindSimilarRules(ctx, "Bathroom breaks", 0.1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 1; i < len(similar); i++ {
			if similar[i].Similarity > similar[i-1].Similarity {
				t.Fatal("results are not sorted by descending similarity")
			}
		}
	})
}

func TestSuggestExistingRule(t *testing.T) {
	detector := NewDuplicationDetector(staticSource{
		activeRule("r1", "Water break"),
		activeRule("r2", "Emergency"),
	})
	ctx := context.Background()

	t.Run("exact normalized match wins", func(t *testing.T) {
		suggested, err := detector.SuggestExistingRule(ctx, "water-break")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if suggested == nil || suggested.ID != "r1" {
			t.Fatalf("suggested = %+v, want r1", suggested)
		}
	})

	t.Run("near match above 0.9", func(t *testing.T) {
		suggested, err := detector.SuggestExistingRule(ctx, "Water breaks")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if suggested == nil || suggested.ID != "r1" {
			t.Fatalf("suggested = %+v, want r1", suggested)
		}
	})

	t.Run("no suggestion for distant names", func(t *testing.T) {
		suggested, err := detector.SuggestExistingRule(ctx, "Deep work")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if suggested != nil {
			t.Fatalf("suggested = %+v, want nil", suggested)
		}
	})
}

func TestGenerateNameSuggestions(t *testing.T) {
	detector := NewDuplicationDetector(nil)

	t.Run("numbered variants first", func(t *testing.T) {
		got := detector.GenerateNameSuggestions("Break", []string{"Break"})
		want := []string{"Break 2", "Break 3", "Break 4", "Break 5", "Break 6"}
		if len(got) != len(want) {
			t.Fatalf("got %d suggestions, want %d: %v", len(got), len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("suggestion[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("collisions are skipped after normalization", func(t *testing.T) {
		got := detector.GenerateNameSuggestions("Break", []string{"Break", "break-2", "BREAK 3"})
		if len(got) == 0 || got[0] != "Break 4" {
			t.Fatalf("got %v, want first suggestion Break 4", got)
		}
	})

	t.Run("falls through to suffixes and prefixes", func(t *testing.T) {
		existing := []string{"Break"}
		for i := 2; i <= 10; i++ {
			existing = append(existing, fmt.Sprintf("Break %d", i))
		}
		got := detector.GenerateNameSuggestions("Break", existing)
		if len(got) == 0 {
			t.Fatal("expected suffix/prefix suggestions")
		}
		if got[0] != "Break (short)" {
			t.Fatalf("got %v, want Break (short) first", got)
		}
	})
}

func TestIsCommonPattern(t *testing.T) {
	detector := NewDuplicationDetector(nil)

	if !detector.IsCommonPattern("Bathroom Break!") {
		t.Fatal("expected bathroom break to be a common pattern")
	}
	if !detector.IsCommonPattern("phone-call") {
		t.Fatal("expected phone call to be a common pattern")
	}
	if detector.IsCommonPattern("Deep work session") {
		t.Fatal("did not expect deep work session to be a common pattern")
	}
}
