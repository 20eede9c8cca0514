package journal

import (
	"encoding/json"
	"fmt"

	"github.com/TobiSchelling/LifeLens/internal/insight"
)

// EntryRef identifies one preprocessed journal entry in the manifest.
type EntryRef struct {
	Date         string `json:"date"`
	OriginalPath string `json:"originalPath"`
	R2Key        string `json:"r2Key"`
	WordCount    int    `json:"wordCount"`
	ContentHash  string `json:"contentHash"`
}

// DateRange is the inclusive date span of the manifest.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Manifest describes the full entry corpus. Produced by the preprocessing
// stage; immutable for the lifetime of a run.
type Manifest struct {
	GeneratedAt  string     `json:"generatedAt"`
	TotalEntries int        `json:"totalEntries"`
	DateRange    DateRange  `json:"dateRange"`
	Entries      []EntryRef `json:"entries"`
}

// ManifestError marks a manifest that is unreadable or malformed. The
// pipeline treats it as fatal and stays idle.
type ManifestError struct {
	Reason string
	Err    error
}

func (e *ManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest invalid: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("manifest invalid: %s", e.Reason)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// ParseManifest decodes and validates manifest bytes. Entries must be in
// strictly ascending date order with unique dates, and the declared counts
// and range must match the entry list.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Reason: "not valid JSON", Err: err}
	}

	if len(m.Entries) == 0 {
		return nil, &ManifestError{Reason: "no entries"}
	}
	if m.TotalEntries != len(m.Entries) {
		return nil, &ManifestError{Reason: fmt.Sprintf(
			"totalEntries %d does not match %d entries", m.TotalEntries, len(m.Entries))}
	}

	prev := ""
	for i, e := range m.Entries {
		if _, err := insight.ParseDate(e.Date); err != nil {
			return nil, &ManifestError{Reason: fmt.Sprintf("entry %d", i), Err: err}
		}
		if e.R2Key == "" {
			return nil, &ManifestError{Reason: fmt.Sprintf("entry %s has no object key", e.Date)}
		}
		if e.ContentHash == "" {
			return nil, &ManifestError{Reason: fmt.Sprintf("entry %s has no content hash", e.Date)}
		}
		if i > 0 && e.Date <= prev {
			return nil, &ManifestError{Reason: fmt.Sprintf(
				"entries out of order: %s after %s", e.Date, prev)}
		}
		prev = e.Date
	}

	first := m.Entries[0].Date
	last := m.Entries[len(m.Entries)-1].Date
	if m.DateRange.Start != first || m.DateRange.End != last {
		return nil, &ManifestError{Reason: fmt.Sprintf(
			"dateRange [%s, %s] does not match entries [%s, %s]",
			m.DateRange.Start, m.DateRange.End, first, last)}
	}

	return &m, nil
}

// EntryKey returns the object-store key for an entry date.
func EntryKey(prefix, date string) string {
	return prefix + date + ".md"
}
