// Package client calls the import backend over HTTP.
//
// Every method returns a *core.CallError on failure, which tells a
// connectivity problem (core.ErrConnectivity) apart from an error the
// backend reported (core.ErrServer, with the backend's detail text).
// Nothing is cached and nothing is retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/logging"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of a failed response is read for its detail.
const maxErrorBody = 64 << 10

// Client is a backend API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	hc      *http.Client
	do      func(*http.Request) (*http.Response, error)
	limiter *Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithTimeout sets the per-call timeout. A client passed to WithHTTPClient
// is copied first, never changed.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.hc
			hc.Timeout = d
			c.hc = &hc
		}
	}
}

// WithLimiter bounds concurrent uploads, transforms and downloads.
func WithLimiter(l *Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.do = c.hc.Do
	return c
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Limiter returns the heavy-call limiter, or nil when none is set.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// Upload sends a file and returns the new job and its first-sheet preview.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*core.UploadResponse, error) {
	release, err := c.acquire(ctx, core.OpUpload)
	if err != nil {
		return nil, err
	}
	defer release()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("upload: create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("upload: read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload: close form: %w", err)
	}

	var out core.UploadResponse
	if err := c.call(ctx, core.OpUpload, http.MethodPost, "/upload", nil, &body, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Preview fetches the preview of one sheet of an uploaded job.
// Calling it twice with the same sheet yields equal previews.
func (c *Client) Preview(ctx context.Context, jobID core.JobID, sheet string) (*core.PreviewData, error) {
	q := url.Values{}
	if sheet != "" {
		q.Set("sheet", sheet)
	}
	var out core.PreviewData
	if err := c.call(ctx, core.OpPreview, http.MethodGet, "/preview/"+url.PathEscape(string(jobID)), q, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fields returns the target-field vocabulary of an import type.
func (c *Client) Fields(ctx context.Context, importType core.ImportType) ([]string, error) {
	q := url.Values{"type": {string(importType.OrDefault())}}
	var out struct {
		Fields []string `json:"fields"`
	}
	if err := c.call(ctx, core.OpFields, http.MethodGet, "/templates/fields", q, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Fields, nil
}

// Templates lists the saved mapping templates.
func (c *Client) Templates(ctx context.Context) ([]core.MappingTemplate, error) {
	var out []core.MappingTemplate
	if err := c.call(ctx, core.OpTemplates, http.MethodGet, "/templates", nil, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveTemplate persists mapping under name and returns the stored template.
func (c *Client) SaveTemplate(ctx context.Context, name string, mapping core.ColumnMapping) (*core.MappingTemplate, error) {
	in := struct {
		Name      string             `json:"name"`
		ColumnMap core.ColumnMapping `json:"column_map"`
	}{Name: name, ColumnMap: mapping}

	var out core.MappingTemplate
	if err := c.callJSON(ctx, core.OpSaveTemplate, http.MethodPost, "/templates", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuggestMapping asks the backend to guess a mapping for columns.
// No guesses yields an empty mapping, not an error.
func (c *Client) SuggestMapping(ctx context.Context, columns []string) (core.ColumnMapping, error) {
	if columns == nil {
		columns = []string{}
	}
	var out struct {
		Mapping core.ColumnMapping `json:"mapping"`
	}
	if err := c.callJSON(ctx, core.OpSuggest, http.MethodPost, "/suggest-mapping", columns, &out); err != nil {
		return nil, err
	}
	if out.Mapping == nil {
		return core.ColumnMapping{}, nil
	}
	return out.Mapping, nil
}

// Transform submits a job for validation and persistence.
func (c *Client) Transform(ctx context.Context, jobID core.JobID, req core.TransformRequest) (*core.TransformResult, error) {
	release, err := c.acquire(ctx, core.OpTransform)
	if err != nil {
		return nil, err
	}
	defer release()

	var out core.TransformResult
	if err := c.callJSON(ctx, core.OpTransform, http.MethodPost, "/transform/"+url.PathEscape(string(jobID)), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadExport streams an export file into w and returns the bytes written.
func (c *Client) DownloadExport(ctx context.Context, filename string, w io.Writer) (int64, error) {
	release, err := c.acquire(ctx, core.OpExport)
	if err != nil {
		return 0, err
	}
	defer release()

	req, err := c.newRequest(ctx, http.MethodGet, "/exports/"+url.PathEscape(filename), nil, nil, "")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", core.OpExport, err)
	}
	resp, err := c.send(core.OpExport, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, core.NewTransportError(core.OpExport, err)
	}
	return n, nil
}

// Job returns the backend's record of an import job.
func (c *Client) Job(ctx context.Context, jobID core.JobID) (*core.JobStatus, error) {
	var out core.JobStatus
	if err := c.call(ctx, core.OpJob, http.MethodGet, "/jobs/"+url.PathEscape(string(jobID)), nil, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the backend answers.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, core.OpHealth, http.MethodGet, "/health", nil, nil, "", nil)
}

// acquire takes a limiter slot for heavy calls. The returned func releases it.
func (c *Client) acquire(ctx context.Context, op core.Operation) (func(), error) {
	if c.limiter == nil {
		return func() {}, nil
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c.limiter.Release, nil
}

// callJSON sends in as a JSON body and decodes the answer into out.
func (c *Client) callJSON(ctx context.Context, op core.Operation, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	return c.call(ctx, op, method, path, nil, bytes.NewReader(body), "application/json", out)
}

// call performs one request and decodes a 2xx JSON answer into out.
// A nil out discards the body.
func (c *Client) call(ctx context.Context, op core.Operation, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body, contentType)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	resp, err := c.send(op, req)
	if err != nil {
		logging.WithFields(ctx, "op", string(op), "path", path).Warn("backend call failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
	defer resp.Body.Close()

	logging.WithFields(ctx, "op", string(op), "path", path).Debug("backend call",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.CallError{
			Op:     op,
			Status: resp.StatusCode,
			Detail: "invalid response from the import service",
			Err:    err,
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}
	return req, nil
}

// send performs req and turns transport failures and non-2xx answers into
// *core.CallError. On success the caller owns resp.Body.
func (c *Client) send(op core.Operation, req *http.Request) (*http.Response, error) {
	resp, err := c.do(req)
	if err != nil {
		return nil, core.NewTransportError(op, err)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()

	slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, core.NewServerError(op, resp.StatusCode, detailFrom(slurp))
}

// detailFrom extracts the human-readable reason from an error body. The
// backend sends {"detail": "..."} or, for request validation failures, a
// list of {"loc": [...], "msg": "..."} objects.
func detailFrom(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return truncate(string(body), 200)
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if len(it.Loc) > 0 {
				loc := make([]string, len(it.Loc))
				for i, p := range it.Loc {
					loc[i] = fmt.Sprint(p)
				}
				msgs = append(msgs, strings.Join(loc, ".")+": "+it.Msg)
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return truncate(string(envelope.Detail), 200)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
