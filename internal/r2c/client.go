package r2c

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/r2clabs/bulkstudy/internal/identity"
	"github.com/r2clabs/bulkstudy/pkg/models"
)

// Sentinel errors for R2C API failures.
var (
	ErrUnreachable   = errors.New("r2c api unreachable")
	ErrTimeout       = errors.New("r2c api timeout")
	ErrRequestFailed = errors.New("r2c api request failed")
	ErrBadResponse   = errors.New("r2c api returned invalid response")
)

// Client is the interface for the parts of the R2C API the bulk flow uses.
type Client interface {
	StartAnalysis(ctx context.Context, doc Document) (string, error)
	AnalysisStatus(ctx context.Context, analysisID string) (models.StatusReport, error)
	CreateStudy(ctx context.Context, draft models.DraftStudy) error
	Ready(ctx context.Context) error
}

// Document is one uploaded file to be analyzed.
type Document struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// APIError is a non-2xx answer from the R2C API. Message is the body's
// "message" field when present.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

func (e *APIError) Unwrap() error { return ErrRequestFailed }

// HTTPClient implements Client over the R2C REST API.
type HTTPClient struct {
	baseURL string
	tokens  identity.Provider
	client  *http.Client
}

// NewHTTPClient creates a new R2C API client. Every request asks tokens for a
// fresh bearer token first.
func NewHTTPClient(baseURL string, tokens identity.Provider, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
	}
}

// StartAnalysis uploads one document and returns the server's analysis id.
func (c *HTTPClient) StartAnalysis(ctx context.Context, doc Document) (string, error) {
	body, contentType, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, "/studies/analyze", body, contentType)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus("start analysis", resp); err != nil {
		return "", err
	}

	var out startAnalysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding start analysis response: %v", ErrBadResponse, err)
	}
	if out.AnalysisID == "" {
		return "", fmt.Errorf("%w: empty analysisId", ErrBadResponse)
	}
	return out.AnalysisID, nil
}

// AnalysisStatus fetches the current state of one analysis.
func (c *HTTPClient) AnalysisStatus(ctx context.Context, analysisID string) (models.StatusReport, error) {
	resp, err := c.do(ctx, http.MethodGet, "/studies/analyze/"+url.PathEscape(analysisID), nil, "")
	if err != nil {
		return models.StatusReport{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus("analysis status", resp); err != nil {
		return models.StatusReport{}, err
	}

	var report models.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return models.StatusReport{}, fmt.Errorf("%w: decoding status response: %v", ErrBadResponse, err)
	}
	report.Data = models.CompactRaw(report.Data)
	return report, nil
}

// CreateStudy submits one draft as a new study.
func (c *HTTPClient) CreateStudy(ctx context.Context, draft models.DraftStudy) error {
	body, contentType, err := encodeStudy(draft)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/studies", body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus("create study", resp)
}

// Ready checks that the API answers its health endpoint. It does not need a token.
func (c *HTTPClient) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: api not ready (status %d)", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

// checkStatus turns a non-2xx response into an *APIError carrying the body's message.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{Op: op, StatusCode: resp.StatusCode}
	var body messageBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func encodeDocument(doc Document) (io.Reader, string, error) {
	if doc.Body == nil {
		return nil, "", fmt.Errorf("document %q has no content", doc.Name)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, doc.Name))
	ct := doc.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, doc.Body); err != nil {
		return nil, "", fmt.Errorf("copying %q: %w", doc.Name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func encodeStudy(d models.DraftStudy) (io.Reader, string, error) {
	genres := d.Genres
	if genres == nil {
		genres = []string{}
	}
	questions := d.Questions
	if questions == nil {
		questions = []models.Question{}
	}

	genresJSON, err := json.Marshal(genres)
	if err != nil {
		return nil, "", fmt.Errorf("encoding genres: %w", err)
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return nil, "", fmt.Errorf("encoding questions: %w", err)
	}
	docJSON, err := json.Marshal(d.Document)
	if err != nil {
		return nil, "", fmt.Errorf("encoding document: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"title", d.Title},
		{"abstract", d.Abstract},
		{"brief_description", d.BriefDescription},
		{"genres", string(genresJSON)},
		{"questions", string(questionsJSON)},
		{"analysisId", d.AnalysisID},
		{"document", string(docJSON)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", f.name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// --- R2C response types ---

type startAnalysisResponse struct {
	AnalysisID string `json:"analysisId"`
}

type messageBody struct {
	Message string `json:"message"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
