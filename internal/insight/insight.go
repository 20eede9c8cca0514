package insight

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Tier identifies one aggregation level above per-entry extraction.
type Tier string

const (
	TierWeekly    Tier = "weekly"
	TierMonthly   Tier = "monthly"
	TierQuarterly Tier = "quarterly"
	TierSynthesis Tier = "synthesis"
)

// SynthesisKey is the natural key of the singleton synthesis artifact.
const SynthesisKey = "main"

// Tiers lists the aggregation tiers in dependency order.
var Tiers = []Tier{TierWeekly, TierMonthly, TierQuarterly, TierSynthesis}

var validate = validator.New()

// PersonMention is one person referenced in a single entry.
type PersonMention struct {
	Name         string  `json:"name" validate:"required"`
	Relationship string  `json:"relationship"`
	Sentiment    float64 `json:"sentiment" validate:"gte=-1,lte=1"`
	Interaction  string  `json:"interaction"`
}

// Extraction is the structured record derived from one journal entry.
type Extraction struct {
	MoodScore          int             `json:"mood_score" validate:"min=1,max=10"`
	EnergyLevel        int             `json:"energy_level" validate:"min=1,max=10"`
	SleepMentioned     bool            `json:"sleep_mentioned"`
	SleepQuality       *int            `json:"sleep_quality" validate:"omitempty,min=1,max=10"`
	MedicationMentions []string        `json:"medication_mentions"`
	HormoneTherapyNote *string         `json:"hormone_therapy_note"`
	People             []PersonMention `json:"people" validate:"dive"`
	Activities         []string        `json:"activities"`
	Events             []string        `json:"events"`
	DominantThemes     []string        `json:"dominant_themes" validate:"max=5"`
	IdentityMarkers    []string        `json:"identity_markers"`
	KeyQuotes          []string        `json:"key_quotes" validate:"max=3"`
	Summary            string          `json:"summary" validate:"required"`
}

// PersonAggregate rolls up one person's appearances across a week.
type PersonAggregate struct {
	Name         string  `json:"name" validate:"required"`
	Count        int     `json:"count" validate:"min=1"`
	AvgSentiment float64 `json:"avg_sentiment" validate:"gte=-1,lte=1"`
}

// WeeklySummary spans seven consecutive days, keyed by week-start date.
type WeeklySummary struct {
	AvgMood          float64           `json:"avg_mood" validate:"min=1,max=10"`
	AvgEnergy        float64           `json:"avg_energy" validate:"min=1,max=10"`
	SleepQualityAvg  *float64          `json:"sleep_quality_avg" validate:"omitempty,min=1,max=10"`
	Trend            string            `json:"trend" validate:"oneof=improving declining stable volatile"`
	PeopleSeen       []PersonAggregate `json:"people_seen" validate:"dive"`
	DominantThemes   []string          `json:"dominant_themes"`
	NotableEvents    []string          `json:"notable_events"`
	CyclePatternNote string            `json:"cycle_pattern_note"`
	Narrative        string            `json:"narrative" validate:"required"`
}

// MonthlySummary spans one calendar month, keyed by YYYY-MM.
type MonthlySummary struct {
	HappinessIndex     float64            `json:"happiness_index" validate:"min=1,max=10"`
	Trajectory         string             `json:"trajectory" validate:"required"`
	RelationshipHealth map[string]float64 `json:"relationship_health" validate:"dive,min=1,max=10"`
	TopThemes          []string           `json:"top_themes"`
	Milestones         []string           `json:"milestones"`
	Challenges         []string           `json:"challenges"`
	Wins               []string           `json:"wins"`
	MedicationNotes    string             `json:"medication_notes"`
	SleepSummary       string             `json:"sleep_summary"`
	Narrative          string             `json:"narrative" validate:"required"`
}

// PersonTrajectory tracks one frequently mentioned person across a quarter.
type PersonTrajectory struct {
	Name       string `json:"name" validate:"required"`
	Trajectory string `json:"trajectory"`
}

// QuarterlyNotepad spans three months, keyed by YYYY-QN.
type QuarterlyNotepad struct {
	ChapterTitle     string             `json:"chapter_title" validate:"required"`
	OpeningState     string             `json:"opening_state"`
	ClosingState     string             `json:"closing_state"`
	MoodTrajectory   []float64          `json:"mood_trajectory" validate:"max=3,dive,min=1,max=10"`
	EnergyTrajectory []float64          `json:"energy_trajectory" validate:"max=3,dive,min=1,max=10"`
	KeyPeople        []PersonTrajectory `json:"key_people" validate:"dive"`
	DominantThemes   []string           `json:"dominant_themes"`
	Narrative        string             `json:"narrative" validate:"required"`
}

// QuarterMetric is one quarter's headline numbers inside the synthesis.
type QuarterMetric struct {
	Quarter        string  `json:"quarter" validate:"required"`
	AvgMood        float64 `json:"avg_mood" validate:"min=1,max=10"`
	AvgEnergy      float64 `json:"avg_energy" validate:"min=1,max=10"`
	HappinessIndex float64 `json:"happiness_index" validate:"min=1,max=10"`
}

// MedicationCorrelation relates one medication to observed patterns over a period.
type MedicationCorrelation struct {
	Medication  string `json:"medication" validate:"required"`
	Period      string `json:"period"`
	Observation string `json:"observation"`
}

// RelationshipArc describes how one relationship evolved over the corpus.
type RelationshipArc struct {
	Name string `json:"name" validate:"required"`
	Arc  string `json:"arc"`
}

// Milestone is one dated event on the synthesis timeline.
type Milestone struct {
	Date  string `json:"date"`
	Label string `json:"label" validate:"required"`
}

// IdentityArc holds the narratives on either side of the author's
// identity milestone.
type IdentityArc struct {
	BeforeMilestone string `json:"before_milestone"`
	AfterMilestone  string `json:"after_milestone"`
}

// Synthesis is the singleton whole-corpus artifact, keyed by "main".
type Synthesis struct {
	Thesis                 string                  `json:"thesis" validate:"required"`
	IdentityArc            IdentityArc             `json:"identity_arc"`
	QuarterMetrics         []QuarterMetric         `json:"quarter_metrics" validate:"dive"`
	WeeklyPatterns         []string                `json:"weekly_patterns"`
	SeasonalPatterns       []string                `json:"seasonal_patterns"`
	MedicationCorrelations []MedicationCorrelation `json:"medication_correlations" validate:"dive"`
	RelationshipArcs       []RelationshipArc       `json:"relationship_arcs" validate:"dive"`
	Milestones             []Milestone             `json:"milestones" validate:"dive"`
	Strengths              []string                `json:"strengths"`
	Challenges             []string                `json:"challenges"`
	GrowthAreas            []string                `json:"growth_areas"`
	ExecutiveSummary       string                  `json:"executive_summary" validate:"required"`
	FullNarrative          string                  `json:"full_narrative" validate:"required"`
}

// SchemaError reports a payload that does not conform to an artifact shape.
type SchemaError struct {
	Artifact string
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s body does not match schema: %v", e.Artifact, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func decode[T any](artifact string, data []byte, out *T) error {
	if err := json.Unmarshal(data, out); err != nil {
		return &SchemaError{Artifact: artifact, Err: err}
	}
	if err := validate.Struct(out); err != nil {
		return &SchemaError{Artifact: artifact, Err: err}
	}
	return nil
}

// DecodeExtraction parses and validates an extraction body.
func DecodeExtraction(data []byte) (*Extraction, error) {
	var e Extraction
	if err := decode("extraction", data, &e); err != nil {
		return nil, err
	}
	// omitempty treats a pointer to zero as absent, so zero needs an
	// explicit reject to keep nullable scores in [1,10] or null.
	if e.SleepQuality != nil && *e.SleepQuality == 0 {
		return nil, &SchemaError{Artifact: "extraction", Err: fmt.Errorf("sleep_quality must be null or in [1,10]")}
	}
	return &e, nil
}

// DecodeWeeklySummary parses and validates a weekly summary body.
func DecodeWeeklySummary(data []byte) (*WeeklySummary, error) {
	var w WeeklySummary
	if err := decode("weekly summary", data, &w); err != nil {
		return nil, err
	}
	if w.SleepQualityAvg != nil && *w.SleepQualityAvg == 0 {
		return nil, &SchemaError{Artifact: "weekly summary", Err: fmt.Errorf("sleep_quality_avg must be null or in [1,10]")}
	}
	return &w, nil
}

// DecodeMonthlySummary parses and validates a monthly summary body.
func DecodeMonthlySummary(data []byte) (*MonthlySummary, error) {
	var m MonthlySummary
	if err := decode("monthly summary", data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeQuarterlyNotepad parses and validates a quarterly notepad body.
func DecodeQuarterlyNotepad(data []byte) (*QuarterlyNotepad, error) {
	var q QuarterlyNotepad
	if err := decode("quarterly notepad", data, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// DecodeSynthesis parses and validates a synthesis body.
func DecodeSynthesis(data []byte) (*Synthesis, error) {
	var s Synthesis
	if err := decode("synthesis", data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CanonicalBody parses data as the artifact shape for tier and re-encodes it
// with canonical field order, so equal artifacts hash equally.
func CanonicalBody(tier Tier, data []byte) ([]byte, error) {
	switch tier {
	case TierWeekly:
		w, err := DecodeWeeklySummary(data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(w)
	case TierMonthly:
		m, err := DecodeMonthlySummary(data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(m)
	case TierQuarterly:
		q, err := DecodeQuarterlyNotepad(data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(q)
	case TierSynthesis:
		s, err := DecodeSynthesis(data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(s)
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
}
