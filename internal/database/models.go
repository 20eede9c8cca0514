package database

// Pipeline phases.
const (
	PhaseIdle        = "idle"
	PhaseExtracting  = "extracting"
	PhaseAggregating = "aggregating"
	PhaseComplete    = "complete"
)

// Job statuses. Succeeded and dead_lettered are terminal.
const (
	JobPending      = "pending"
	JobRunning      = "running"
	JobSucceeded    = "succeeded"
	JobFailed       = "failed"
	JobDeadLettered = "dead_lettered"
)

// Job types.
const (
	JobTypeExtraction  = "extraction"
	JobTypeAggregation = "aggregation"
)

// ArtifactRow is one persisted tier artifact: its natural key, the hash of
// the inputs it was derived from, and the serialized body.
type ArtifactRow struct {
	ID        int64
	Key       string
	InputHash string
	BodyJSON  string
	CreatedAt *string
}

// JobStatus is one dispatched job's durable status row.
type JobStatus struct {
	ID        string
	JobType   string
	RangeID   string
	Status    string
	InputHash string
	ResultKey string
	LastError string
	Attempts  int
	CreatedAt *string
	UpdatedAt *string
}

// IsTerminal reports whether a status never regresses.
func IsTerminal(status string) bool {
	return status == JobSucceeded || status == JobDeadLettered
}

// PipelineState is the coordinator's singleton durable state.
type PipelineState struct {
	Phase            string
	CurrentTier      *string
	TotalEntries     int
	ProcessedEntries int
	RunID            string
	StartedAt        *string
	CompletedAt      *string
	Warnings         []string
}

// Stats contains aggregate artifact and job counts.
type Stats struct {
	Extractions       int
	WeeklySummaries   int
	MonthlySummaries  int
	QuarterlyNotepads int
	Syntheses         int
	DeadLetteredJobs  int
}
