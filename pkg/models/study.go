package models

import (
	"encoding/json"
	"slices"
)

// DraftState says what can still be done with a draft study.
type DraftState string

const (
	DraftAnalyzed  DraftState = "analyzed"
	DraftFailed    DraftState = "failed"
	DraftSubmitted DraftState = "submitted"
)

// Question is one question/answer pair proposed for a study.
type Question struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// DocumentMeta describes the source document a study was analyzed from.
type DocumentMeta struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	URL         string `json:"url,omitempty"`
}

// AnalysisResult is the typed view of a completed job's data payload.
type AnalysisResult struct {
	Title            string        `json:"title"`
	Abstract         string        `json:"abstract"`
	BriefDescription string        `json:"brief_description"`
	Genres           []string      `json:"genres"`
	Questions        []Question    `json:"questions"`
	Document         *DocumentMeta `json:"document,omitempty"`
}

// DecodeAnalysisResult reads a job payload leniently. Payloads that do not
// decode yield an empty result rather than an error.
func DecodeAnalysisResult(raw json.RawMessage) AnalysisResult {
	var r AnalysisResult
	if len(CompactRaw(raw)) == 0 {
		return r
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return AnalysisResult{}
	}
	return r
}

// DraftStudy is an editable study built from one terminal job.
type DraftStudy struct {
	ID               string       `json:"id"`
	AnalysisID       string       `json:"analysisId"`
	OriginalName     string       `json:"originalName"`
	State            DraftState   `json:"state"`
	Title            string       `json:"title"`
	Abstract         string       `json:"abstract"`
	BriefDescription string       `json:"brief_description"`
	Genres           []string     `json:"genres"`
	Questions        []Question   `json:"questions"`
	Document         DocumentMeta `json:"document"`
	ErrorMessage     string       `json:"errorMessage,omitempty"`
}

// Submittable reports whether the draft should be sent to the create endpoint.
func (d DraftStudy) Submittable() bool {
	switch d.State {
	case DraftAnalyzed:
		return true
	case DraftFailed, DraftSubmitted:
		return false
	}
	return false
}

// Clone returns a deep copy so callers cannot alias slices held by the reconciler.
func (d DraftStudy) Clone() DraftStudy {
	d.Genres = slices.Clone(d.Genres)
	d.Questions = slices.Clone(d.Questions)
	return d
}
