// Package reconcile turns a finished bulk batch into created studies: it
// starts the analyses, builds editable drafts from the results and submits
// them one by one.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/r2clabs/bulkstudy/internal/metrics"
	"github.com/r2clabs/bulkstudy/internal/r2c"
	"github.com/r2clabs/bulkstudy/pkg/models"
)

var (
	ErrNoFilesAccepted  = errors.New("no file was accepted for analysis")
	ErrDraftNotFound    = errors.New("draft not found")
	ErrDraftNotEditable = errors.New("draft cannot be edited")
	ErrQuestionIndex    = errors.New("question index out of range")
	ErrUnknownField     = errors.New("unknown draft field")
	ErrNothingToSubmit  = errors.New("no draft is ready to submit")
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrBatchInProgress  = errors.New("batch still has pending analyses")
)

// Editable scalar fields of a draft.
const (
	FieldTitle            = "title"
	FieldAbstract         = "abstract"
	FieldBriefDescription = "brief_description"
)

// API is the part of the R2C API the reconciler calls.
type API interface {
	StartAnalysis(ctx context.Context, doc r2c.Document) (string, error)
	CreateStudy(ctx context.Context, draft models.DraftStudy) error
}

// Batch is the job lifecycle manager as seen by the reconciler.
type Batch interface {
	StartBatch(ctx context.Context, entries []models.AnalysisEntry) error
	TerminalJobs() []models.Job
	Summary() models.BatchSummary
	ClearAll(ctx context.Context) error
}

// UploadResult reports which files were accepted for analysis.
type UploadResult struct {
	Accepted []models.AnalysisEntry `json:"accepted"`
	Rejected []string               `json:"rejected"`
	Message  string                 `json:"message,omitempty"`
}

// SubmitResult reports the outcome of SubmitAll.
type SubmitResult struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Errors    []string `json:"errors"`
	Completed bool     `json:"completed"`
	Redirect  string   `json:"redirect,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Reconciler holds the drafts of one session.
type Reconciler struct {
	api          API
	batch        Batch
	metrics      *metrics.Metrics
	confirmation string

	mu         sync.Mutex
	drafts     []models.DraftStudy
	submitting bool
}

// New returns a reconciler. confirmation is where the client goes once every
// draft has been created.
func New(api API, batch Batch, confirmation string, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		api:          api,
		batch:        batch,
		metrics:      m,
		confirmation: confirmation,
	}
}

// Upload starts one analysis per document, in order, and begins a batch with
// the ones the server accepted. A rejected file does not stop the others.
func (r *Reconciler) Upload(ctx context.Context, docs []r2c.Document) (UploadResult, error) {
	res := UploadResult{Accepted: []models.AnalysisEntry{}, Rejected: []string{}}
	for _, doc := range docs {
		id, err := r.api.StartAnalysis(ctx, doc)
		if err != nil {
			slog.Warn("start analysis failed", "file", doc.Name, "error", err)
			res.Rejected = append(res.Rejected, doc.Name)
			continue
		}
		res.Accepted = append(res.Accepted, models.AnalysisEntry{AnalysisID: id, OriginalName: doc.Name})
	}
	if len(res.Rejected) > 0 {
		res.Message = "Failed to start analysis for: " + strings.Join(res.Rejected, ", ")
	}
	if len(res.Accepted) == 0 {
		return res, ErrNoFilesAccepted
	}

	if err := r.batch.StartBatch(ctx, res.Accepted); err != nil {
		return res, fmt.Errorf("starting batch: %w", err)
	}
	slog.Info("bulk upload accepted", "accepted", len(res.Accepted), "rejected", len(res.Rejected))
	return res, nil
}

// LoadDraftsFromTerminalJobs rebuilds the drafts from the batch's terminal
// jobs, discarding any previous edits. Drafts whose study was already created
// stay submitted.
func (r *Reconciler) LoadDraftsFromTerminalJobs() []models.DraftStudy {
	jobs := r.batch.TerminalJobs()

	r.mu.Lock()
	defer r.mu.Unlock()

	sent := make(map[string]bool)
	for _, d := range r.drafts {
		if d.State == models.DraftSubmitted {
			sent[d.ID] = true
		}
	}

	drafts := make([]models.DraftStudy, 0, len(jobs))
	for _, j := range jobs {
		d := draftFromJob(j)
		if sent[d.ID] {
			d.State = models.DraftSubmitted
		}
		drafts = append(drafts, d)
	}
	r.drafts = drafts
	return cloneDrafts(drafts)
}

func draftFromJob(j models.Job) models.DraftStudy {
	d := models.DraftStudy{
		ID:           j.AnalysisID,
		AnalysisID:   j.AnalysisID,
		OriginalName: j.OriginalName,
		Genres:       []string{},
		Questions:    []models.Question{},
		Document:     models.DocumentMeta{FileName: j.OriginalName},
	}

	switch j.Status {
	case models.JobStatusFailed:
		d.State = models.DraftFailed
		d.Title = "Analysis failed: " + j.OriginalName
		d.ErrorMessage = j.ErrorMessage()
	case models.JobStatusCompleted:
		res := models.DecodeAnalysisResult(j.Data)
		d.State = models.DraftAnalyzed
		d.Title = res.Title
		d.Abstract = res.Abstract
		d.BriefDescription = res.BriefDescription
		if res.Genres != nil {
			d.Genres = res.Genres
		}
		if res.Questions != nil {
			d.Questions = res.Questions
		}
		if res.Document != nil {
			d.Document = *res.Document
			if d.Document.FileName == "" {
				d.Document.FileName = j.OriginalName
			}
		}
	case models.JobStatusPending, models.JobStatusAnalyzing:
		// not terminal; TerminalJobs never returns these
	}
	return d
}

// Drafts returns a copy of the current drafts in batch order.
func (r *Reconciler) Drafts() []models.DraftStudy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneDrafts(r.drafts)
}

// Draft returns one draft by id.
func (r *Reconciler) Draft(id string) (models.DraftStudy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return models.DraftStudy{}, ErrDraftNotFound
	}
	return r.drafts[i].Clone(), nil
}

// UpdateField sets one scalar field of a draft.
func (r *Reconciler) UpdateField(id, field, value string) (models.DraftStudy, error) {
	return r.edit(id, func(d *models.DraftStudy) error {
		switch field {
		case FieldTitle:
			d.Title = value
		case FieldAbstract:
			d.Abstract = value
		case FieldBriefDescription:
			d.BriefDescription = value
		default:
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		return nil
	})
}

// UpdateGenres replaces the genre list of a draft.
func (r *Reconciler) UpdateGenres(id string, genres []string) (models.DraftStudy, error) {
	return r.edit(id, func(d *models.DraftStudy) error {
		d.Genres = append([]string{}, genres...)
		return nil
	})
}

// UpdateQuestion replaces the question at index.
func (r *Reconciler) UpdateQuestion(id string, index int, q models.Question) (models.DraftStudy, error) {
	return r.edit(id, func(d *models.DraftStudy) error {
		if index < 0 || index >= len(d.Questions) {
			return fmt.Errorf("%w: %d", ErrQuestionIndex, index)
		}
		d.Questions[index] = q
		return nil
	})
}

// AddQuestion appends a question.
func (r *Reconciler) AddQuestion(id string, q models.Question) (models.DraftStudy, error) {
	return r.edit(id, func(d *models.DraftStudy) error {
		d.Questions = append(d.Questions, q)
		return nil
	})
}

// RemoveQuestion deletes the question at index.
func (r *Reconciler) RemoveQuestion(id string, index int) (models.DraftStudy, error) {
	return r.edit(id, func(d *models.DraftStudy) error {
		if index < 0 || index >= len(d.Questions) {
			return fmt.Errorf("%w: %d", ErrQuestionIndex, index)
		}
		d.Questions = append(d.Questions[:index:index], d.Questions[index+1:]...)
		return nil
	})
}

// edit applies fn to a copy of the draft and stores it only when fn succeeds.
func (r *Reconciler) edit(id string, fn func(*models.DraftStudy) error) (models.DraftStudy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return models.DraftStudy{}, ErrDraftNotFound
	}
	if !r.drafts[i].Submittable() {
		return models.DraftStudy{}, ErrDraftNotEditable
	}

	d := r.drafts[i].Clone()
	if err := fn(&d); err != nil {
		return models.DraftStudy{}, err
	}
	r.drafts[i] = d
	return d.Clone(), nil
}

// SubmitAll creates one study per analyzed draft, sequentially and in order.
// A failed draft does not stop the rest. When every attempt succeeds the
// batch is cleared; otherwise it is kept so the failures can be retried.
// Nothing is sent while the batch still has pending analyses.
func (r *Reconciler) SubmitAll(ctx context.Context) (SubmitResult, error) {
	r.mu.Lock()
	if r.submitting {
		r.mu.Unlock()
		return SubmitResult{}, ErrSubmitInProgress
	}
	if s := r.batch.Summary(); s.Pending > 0 {
		r.mu.Unlock()
		return SubmitResult{}, fmt.Errorf("%w: %d of %d", ErrBatchInProgress, s.Pending, s.Total)
	}
	var pending []models.DraftStudy
	for _, d := range r.drafts {
		if d.Submittable() {
			pending = append(pending, d.Clone())
		}
	}
	if len(pending) == 0 {
		r.mu.Unlock()
		return SubmitResult{}, ErrNothingToSubmit
	}
	r.submitting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.submitting = false
		r.mu.Unlock()
	}()

	res := SubmitResult{Attempted: len(pending), Errors: []string{}}
	for _, d := range pending {
		err := r.api.CreateStudy(ctx, d)
		r.metrics.RecordSubmission(err == nil)
		if err != nil {
			slog.Warn("create study failed", "analysis_id", d.AnalysisID, "error", err)
			res.Errors = append(res.Errors, submissionMessage(err))
			continue
		}
		res.Succeeded++
		r.markSubmitted(d.ID)
	}

	if res.Succeeded < res.Attempted {
		res.Message = fmt.Sprintf("Submitted %d of %d studies. Errors: %s",
			res.Succeeded, res.Attempted, strings.Join(res.Errors, "; "))
		return res, nil
	}

	if err := r.batch.ClearAll(ctx); err != nil {
		return res, fmt.Errorf("clearing batch: %w", err)
	}
	r.mu.Lock()
	r.drafts = nil
	r.mu.Unlock()

	res.Completed = true
	res.Redirect = r.confirmation
	slog.Info("bulk submission complete", "studies", res.Succeeded)
	return res, nil
}

// Discard drops the drafts and clears the batch without creating anything.
func (r *Reconciler) Discard(ctx context.Context) error {
	r.mu.Lock()
	r.drafts = nil
	r.mu.Unlock()
	return r.batch.ClearAll(ctx)
}

func (r *Reconciler) markSubmitted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		r.drafts[i].State = models.DraftSubmitted
	}
}

func (r *Reconciler) indexLocked(id string) int {
	for i, d := range r.drafts {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// submissionMessage prefers the server's own message.
func submissionMessage(err error) string {
	var apiErr *r2c.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func cloneDrafts(in []models.DraftStudy) []models.DraftStudy {
	out := make([]models.DraftStudy, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}
