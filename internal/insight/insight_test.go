package insight

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func validExtractionJSON() string {
	return `{
		"mood_score": 7,
		"energy_level": 6,
		"sleep_mentioned": true,
		"sleep_quality": 8,
		"medication_mentions": ["sertraline"],
		"hormone_therapy_note": "week 12, steady",
		"people": [{"name": "Maya", "relationship": "friend", "sentiment": 0.8, "interaction": "in-person"}],
		"activities": ["climbing"],
		"events": ["team offsite"],
		"dominant_themes": ["belonging", "work stress"],
		"identity_markers": ["used new name all day"],
		"key_quotes": ["felt like myself for the first time in weeks"],
		"summary": "A steady day with an energizing climb. Work stress lingered but felt manageable."
	}`
}

func TestDecodeExtractionValid(t *testing.T) {
	e, err := DecodeExtraction([]byte(validExtractionJSON()))
	if err != nil {
		t.Fatalf("expected valid extraction, got %v", err)
	}
	if e.MoodScore != 7 {
		t.Errorf("expected mood 7, got %d", e.MoodScore)
	}
	if e.SleepQuality == nil || *e.SleepQuality != 8 {
		t.Errorf("expected sleep quality 8, got %v", e.SleepQuality)
	}
	if len(e.People) != 1 || e.People[0].Name != "Maya" {
		t.Errorf("unexpected people: %+v", e.People)
	}
}

func TestDecodeExtractionBounds(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(s string) string
		wantErr bool
	}{
		{"mood zero", func(s string) string { return strings.Replace(s, `"mood_score": 7`, `"mood_score": 0`, 1) }, true},
		{"mood eleven", func(s string) string { return strings.Replace(s, `"mood_score": 7`, `"mood_score": 11`, 1) }, true},
		{"energy out of range", func(s string) string { return strings.Replace(s, `"energy_level": 6`, `"energy_level": 42`, 1) }, true},
		{"six themes", func(s string) string {
			return strings.Replace(s, `"dominant_themes": ["belonging", "work stress"]`,
				`"dominant_themes": ["a","b","c","d","e","f"]`, 1)
		}, true},
		{"four quotes", func(s string) string {
			return strings.Replace(s, `"key_quotes": ["felt like myself for the first time in weeks"]`,
				`"key_quotes": ["a","b","c","d"]`, 1)
		}, true},
		{"sleep quality zero", func(s string) string { return strings.Replace(s, `"sleep_quality": 8`, `"sleep_quality": 0`, 1) }, true},
		{"sleep quality null", func(s string) string { return strings.Replace(s, `"sleep_quality": 8`, `"sleep_quality": null`, 1) }, false},
		{"hormone note null", func(s string) string {
			return strings.Replace(s, `"hormone_therapy_note": "week 12, steady"`, `"hormone_therapy_note": null`, 1)
		}, false},
		{"missing summary", func(s string) string {
			return strings.Replace(s, `"summary": "A steady day with an energizing climb. Work stress lingered but felt manageable."`, `"summary": ""`, 1)
		}, true},
		{"sentiment out of range", func(s string) string { return strings.Replace(s, `"sentiment": 0.8`, `"sentiment": 2.5`, 1) }, true},
		{"not json", func(s string) string { return "here is the JSON you asked for" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeExtraction([]byte(tc.mutate(validExtractionJSON())))
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if tc.wantErr {
				var se *SchemaError
				if !errors.As(err, &se) {
					t.Errorf("expected SchemaError, got %T", err)
				}
			}
		})
	}
}

func TestDecodeWeeklySummaryTrend(t *testing.T) {
	valid := `{
		"avg_mood": 6.5,
		"avg_energy": 5.8,
		"sleep_quality_avg": null,
		"trend": "improving",
		"people_seen": [{"name": "Maya", "count": 2, "avg_sentiment": 0.7}],
		"dominant_themes": ["belonging"],
		"notable_events": [],
		"cycle_pattern_note": "midweek dip",
		"narrative": "A week that started slow and ended bright."
	}`

	if _, err := DecodeWeeklySummary([]byte(valid)); err != nil {
		t.Fatalf("expected valid weekly summary, got %v", err)
	}

	bad := strings.Replace(valid, `"trend": "improving"`, `"trend": "sideways"`, 1)
	if _, err := DecodeWeeklySummary([]byte(bad)); err == nil {
		t.Fatal("expected trend validation error, got nil")
	}
}

func TestDecodeSynthesisRequiredFields(t *testing.T) {
	body := `{
		"thesis": "Two years of becoming.",
		"identity_arc": {"before_milestone": "guarded", "after_milestone": "open"},
		"quarter_metrics": [{"quarter": "2025-Q1", "avg_mood": 6.1, "avg_energy": 5.9, "happiness_index": 6.4}],
		"weekly_patterns": ["sunday dread"],
		"seasonal_patterns": ["winter dips"],
		"medication_correlations": [{"medication": "sertraline", "period": "2024-H1", "observation": "steadier mornings"}],
		"relationship_arcs": [{"name": "Maya", "arc": "deepening"}],
		"milestones": [{"date": "2024-06-14", "label": "name change"}],
		"strengths": ["persistence"],
		"challenges": ["isolation"],
		"growth_areas": ["asking for help"],
		"executive_summary": "Steady upward arc with hard winters.",
		"full_narrative": "The long version."
	}`
	if _, err := DecodeSynthesis([]byte(body)); err != nil {
		t.Fatalf("expected valid synthesis, got %v", err)
	}

	missing := strings.Replace(body, `"thesis": "Two years of becoming.",`, `"thesis": "",`, 1)
	if _, err := DecodeSynthesis([]byte(missing)); err == nil {
		t.Fatal("expected error for empty thesis, got nil")
	}
}

func TestCanonicalBodyStable(t *testing.T) {
	// Same fields in a different key order must canonicalize identically.
	a := `{"avg_mood": 6.5, "avg_energy": 5.8, "trend": "stable", "narrative": "Fine week.", "cycle_pattern_note": ""}`
	b := `{"narrative": "Fine week.", "trend": "stable", "avg_energy": 5.8, "avg_mood": 6.5, "cycle_pattern_note": ""}`

	ca, err := CanonicalBody(TierWeekly, []byte(a))
	if err != nil {
		t.Fatalf("canonicalizing a: %v", err)
	}
	cb, err := CanonicalBody(TierWeekly, []byte(b))
	if err != nil {
		t.Fatalf("canonicalizing b: %v", err)
	}
	if !bytes.Equal(ca, cb) {
		t.Errorf("canonical bodies differ:\n%s\n%s", ca, cb)
	}
}

func TestCanonicalBodyUnknownTier(t *testing.T) {
	if _, err := CanonicalBody(Tier("daily"), []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}
