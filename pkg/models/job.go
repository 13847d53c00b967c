// Package models contains shared data models used across the bulk study service.
package models

import (
	"encoding/json"
	"fmt"
)

// JobStatus is the lifecycle state of one bulk-analysis job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusAnalyzing JobStatus = "analyzing" // display only; polled like pending
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusAnalyzing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can happen from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	case JobStatusPending, JobStatusAnalyzing:
		return false
	}
	return false
}

// IsPending reports whether the poller still has to check a job in state s.
// Unknown statuses count as pending so a job is never silently dropped.
func (s JobStatus) IsPending() bool {
	return !s.IsTerminal()
}

// UnmarshalJSON rejects status strings outside the known set.
func (s *JobStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st := JobStatus(raw)
	if !st.Valid() {
		return fmt.Errorf("unknown job status %q", raw)
	}
	*s = st
	return nil
}

// Job is one document submitted for background analysis. The server-issued
// analysis id doubles as the job id, so merges are idempotent.
type Job struct {
	ID           string          `json:"id"`
	AnalysisID   string          `json:"analysisId"`
	OriginalName string          `json:"originalName"`
	Status       JobStatus       `json:"status"`
	Data         json.RawMessage `json:"data"`
	Error        *string         `json:"error"`
}

// NewPendingJob returns a fresh job for an accepted analysis.
func NewPendingJob(e AnalysisEntry) Job {
	return Job{
		ID:           e.AnalysisID,
		AnalysisID:   e.AnalysisID,
		OriginalName: e.OriginalName,
		Status:       JobStatusPending,
	}
}

// ErrorMessage returns the failure reason or "" when none is set.
func (j Job) ErrorMessage() string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}

// AnalysisEntry pairs a server-side analysis id with the file it was started for.
type AnalysisEntry struct {
	AnalysisID   string `json:"analysisId"`
	OriginalName string `json:"originalName"`
}

// BatchSummary counts the jobs of the current batch by status.
type BatchSummary struct {
	Total     int  `json:"total"`
	Pending   int  `json:"pending"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Complete  bool `json:"complete"`
}

// Summarize tallies jobs. An empty batch is never complete.
func Summarize(jobs []Job) BatchSummary {
	s := BatchSummary{Total: len(jobs)}
	for _, j := range jobs {
		switch j.Status {
		case JobStatusCompleted:
			s.Completed++
		case JobStatusFailed:
			s.Failed++
		case JobStatusPending, JobStatusAnalyzing:
			s.Pending++
		default:
			s.Pending++
		}
	}
	s.Complete = s.Total > 0 && s.Pending == 0
	return s
}

// StatusReport is what the analysis service says about one analysis.
// Status stays a plain string: the server may use in-progress values we do
// not model, and those must not break decoding.
type StatusReport struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

// Outcome maps the reported status onto a JobStatus. Anything that is not
// completed or failed is still in progress.
func (r StatusReport) Outcome() JobStatus {
	switch JobStatus(r.Status) {
	case JobStatusCompleted:
		return JobStatusCompleted
	case JobStatusFailed:
		return JobStatusFailed
	case JobStatusAnalyzing:
		return JobStatusAnalyzing
	case JobStatusPending:
		return JobStatusPending
	}
	return JobStatusPending
}

// CompactRaw drops JSON null so that absent and null payloads compare equal.
func CompactRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
