package models

import "time"

// BatchReport holds the ordered records of one batch run.
type BatchReport struct {
	RunID      string
	Mode       ExtractionMode
	StartedAt  time.Time
	FinishedAt time.Time
	// Cancelled is set when the run stopped before processing every URL.
	Cancelled bool
	Records   []*ResultRecord
}

// NewBatchReport returns an empty report for a run.
func NewBatchReport(runID string, mode ExtractionMode, startedAt time.Time) *BatchReport {
	return &BatchReport{
		RunID:     runID,
		Mode:      mode,
		StartedAt: startedAt,
		Records:   make([]*ResultRecord, 0),
	}
}

// Append adds a finalized record. Records are never modified after appending.
func (b *BatchReport) Append(rec *ResultRecord) {
	if rec == nil {
		return
	}
	b.Records = append(b.Records, rec)
}

// Len returns the number of records.
func (b *BatchReport) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Successes counts Success records.
func (b *BatchReport) Successes() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, rec := range b.Records {
		if rec.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Failures counts Failed records.
func (b *BatchReport) Failures() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, rec := range b.Records {
		if rec.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Duration returns the wall-clock time of the run.
func (b *BatchReport) Duration() time.Duration {
	if b == nil || b.FinishedAt.IsZero() {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}
