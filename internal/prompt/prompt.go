// Package prompt maps (tier, inputs) to prompt text and the expected output
// shape. Everything here is a pure function of its arguments; no runtime
// state may leak into prompt text, because prompt text participates in every
// cache key through Version.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TobiSchelling/LifeLens/internal/insight"
)

// Version tags every input hash. Bump it whenever any prompt text or output
// schema changes; caches invalidate implicitly.
const Version = "v1"

// authorContext is the stable background block shared by every tier prompt.
const authorContext = `Context about the journal author:
- The corpus spans roughly two years of near-daily entries.
- The author went through a major identity milestone near the midpoint of the
  corpus; entries before and after it differ markedly in tone and self-description.
- Medications appear intermittently, including Guanfacine and hormone therapy;
  dosage changes are usually mentioned in passing, not announced.
- People recur under consistent first names. Relationship kinds include
  partner, family, friend, colleague, and therapist.

Scoring rules:
- Be conservative with numeric scores. Reserve 9-10 and 1-2 for clearly
  exceptional days; most days land between 4 and 7.
- When the entry gives no evidence for a nullable field, use null. Never guess.`

// SystemPrompt returns the fixed system prompt for an aggregation tier.
func SystemPrompt(tier insight.Tier) string {
	switch tier {
	case insight.TierWeekly:
		return "You are a careful analyst condensing one week of structured journal extractions into a weekly summary. You respond with JSON only."
	case insight.TierMonthly:
		return "You are a careful analyst condensing weekly journal summaries into a monthly summary. You respond with JSON only."
	case insight.TierQuarterly:
		return "You are a thoughtful biographer condensing monthly journal summaries into a quarterly chapter. You respond with JSON only."
	case insight.TierSynthesis:
		return "You are a thoughtful biographer synthesizing two years of quarterly journal chapters into a single coherent account. You respond with JSON only."
	default:
		return "You respond with JSON only."
	}
}

// ExtractionSystemPrompt is the fixed system prompt for per-entry extraction.
func ExtractionSystemPrompt() string {
	return "You are a meticulous analyst extracting structured signals from one personal journal entry. You respond with JSON only."
}

// ExtractionPrompt builds the user prompt for one entry.
func ExtractionPrompt(date, content string) string {
	return fmt.Sprintf(`%s

Read this journal entry from %s and extract a structured record.

Entry:
%s

Rules:
- mood_score and energy_level are required integers from 1 to 10.
- sleep_quality is an integer 1-10 when sleep is described, otherwise null.
- people lists each person mentioned, with sentiment from -1 (hostile) to 1
  (warm) and interaction one of: in-person, call, text, mention.
- dominant_themes holds at most 5 themes; key_quotes holds at most 3 short
  verbatim quotes worth keeping.
- summary is 2-3 sentences in neutral third person.

Respond with ONLY JSON matching this schema:
%s`, authorContext, date, content, schemaFor[insight.Extraction]())
}

// DatedExtraction pairs an extraction with its entry date for prompt input.
type DatedExtraction struct {
	Date       string
	Extraction *insight.Extraction
}

// WeeklyPrompt builds the user prompt for one week of extractions, which
// must already be in ascending date order.
func WeeklyPrompt(weekStart string, days []DatedExtraction) string {
	var b strings.Builder
	for _, d := range days {
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", d.Date, compactJSON(d.Extraction))
	}

	return fmt.Sprintf(`%s

Below are the structured extractions for the week starting %s, one per day,
in date order. Some days may be missing; summarize what is present.

%s
Rules:
- trend is one of: improving, declining, stable, volatile.
- people_seen aggregates each person across the week with a mention count and
  mean sentiment.
- cycle_pattern_note records any recurring weekly rhythm you can see, or an
  empty string.
- narrative is one paragraph.

Respond with ONLY JSON matching this schema:
%s`, authorContext, weekStart, b.String(), schemaFor[insight.WeeklySummary]())
}

// DatedWeekly pairs a weekly summary with its week-start date.
type DatedWeekly struct {
	WeekStart string
	Summary   *insight.WeeklySummary
}

// MonthlyPrompt builds the user prompt for one month of weekly summaries,
// in ascending week-start order.
func MonthlyPrompt(month string, weeks []DatedWeekly) string {
	var b strings.Builder
	for _, w := range weeks {
		fmt.Fprintf(&b, "=== week of %s ===\n%s\n\n", w.WeekStart, compactJSON(w.Summary))
	}

	return fmt.Sprintf(`%s

Below are the weekly summaries for %s, in date order. Weeks straddling the
month boundary belong to the month their start date falls in. Some weeks may
be missing; summarize what is present.

%s
Rules:
- happiness_index is a float 1-10; trajectory is a short label.
- relationship_health scores each relationship category (for example partner,
  family, friends, work) from 1 to 10; omit categories with no evidence.
- medication_notes and sleep_summary are short prose, empty if nothing stands out.
- narrative is 2-3 paragraphs.

Respond with ONLY JSON matching this schema:
%s`, authorContext, month, b.String(), schemaFor[insight.MonthlySummary]())
}

// DatedMonthly pairs a monthly summary with its YYYY-MM month.
type DatedMonthly struct {
	Month   string
	Summary *insight.MonthlySummary
}

// QuarterlyPrompt builds the user prompt for one quarter of monthly
// summaries, in calendar order.
func QuarterlyPrompt(quarter string, months []DatedMonthly) string {
	var b strings.Builder
	for _, m := range months {
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", m.Month, compactJSON(m.Summary))
	}

	return fmt.Sprintf(`%s

Below are the monthly summaries for %s, in calendar order. Some months may be
missing; write the chapter from what is present.

%s
Rules:
- chapter_title names this quarter as a chapter of the author's life.
- mood_trajectory and energy_trajectory hold one point per constituent month
  present, in calendar order.
- opening_state and closing_state each describe the author in a sentence or two.
- key_people lists the most-mentioned people with how each relationship moved.
- narrative is 4-6 paragraphs.

Respond with ONLY JSON matching this schema:
%s`, authorContext, quarter, b.String(), schemaFor[insight.QuarterlyNotepad]())
}

// DatedQuarterly pairs a quarterly notepad with its YYYY-QN quarter.
type DatedQuarterly struct {
	Quarter string
	Notepad *insight.QuarterlyNotepad
}

// SynthesisPrompt builds the user prompt over every quarterly notepad, in
// calendar order.
func SynthesisPrompt(quarters []DatedQuarterly) string {
	var b strings.Builder
	for _, q := range quarters {
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", q.Quarter, compactJSON(q.Notepad))
	}

	return fmt.Sprintf(`%s

Below are the quarterly chapters of the full corpus, in calendar order.
Synthesize them into one account of the two-year arc.

%s
Rules:
- thesis is a single sentence stating the central arc.
- identity_arc contrasts the author before and after the identity milestone.
- quarter_metrics holds one row per quarter present, in calendar order.
- medication_correlations relates each medication to observed patterns; omit
  entries for periods with no data rather than inventing placeholders.
- milestones is a dated timeline of the turning points.
- executive_summary is one page at most; full_narrative is the long form.

Respond with ONLY JSON matching this schema:
%s`, authorContext, b.String(), schemaFor[insight.Synthesis]())
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
