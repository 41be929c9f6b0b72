// Package schedapi is the REST client of the cron scheduler.
package schedapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// Sentinel errors for scheduler REST failures.
var (
	ErrUnreachable   = errors.New("scheduler unreachable")
	ErrTimeout       = errors.New("scheduler request timeout")
	ErrRequestFailed = errors.New("scheduler request failed")
	ErrNotFound      = errors.New("not found")
)

// TransportError is a failed REST call. Err wraps one of the sentinels.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is the scheduler REST surface the console depends on.
type Client interface {
	ListJobs(ctx context.Context) ([]models.Job, error)
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	CreateJob(ctx context.Context, spec models.JobSpec) (string, error)
	UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) error
	DeleteJob(ctx context.Context, jobID string) error
	RunJob(ctx context.Context, jobID string) error
	PauseJob(ctx context.Context, jobID string) error
	ResumeJob(ctx context.Context, jobID string) error

	ListExecutions(ctx context.Context, jobID string) ([]models.Execution, error)
	ListAllExecutions(ctx context.Context) ([]models.Execution, error)
	ExecutionLog(ctx context.Context, jobID, timestamp string) (*models.ExecutionLog, error)

	ListDependencies(ctx context.Context) ([]models.DependencyEdge, error)
	CreateDependency(ctx context.Context, edge models.DependencyEdge) error
	DeleteDependency(ctx context.Context, parentID, childID string) error

	Ready(ctx context.Context) error
}

// HTTPClient implements Client over the scheduler's JSON API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a scheduler client. token is sent as a bearer
// token when non-empty.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ListJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	if err := c.do(ctx, "list jobs", http.MethodGet, "/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	return jobs, nil
}

func (c *HTTPClient) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, "get job", http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *HTTPClient) CreateJob(ctx context.Context, spec models.JobSpec) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(ctx, "create job", http.MethodPost, "/jobs", spec, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (c *HTTPClient) UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) error {
	return c.do(ctx, "update job", http.MethodPatch, "/jobs/"+url.PathEscape(jobID), patch, nil)
}

func (c *HTTPClient) DeleteJob(ctx context.Context, jobID string) error {
	return c.do(ctx, "delete job", http.MethodDelete, "/jobs/"+url.PathEscape(jobID), nil, nil)
}

func (c *HTTPClient) RunJob(ctx context.Context, jobID string) error {
	return c.do(ctx, "run job", http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/run", nil, nil)
}

func (c *HTTPClient) PauseJob(ctx context.Context, jobID string) error {
	return c.do(ctx, "pause job", http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/pause", nil, nil)
}

func (c *HTTPClient) ResumeJob(ctx context.Context, jobID string) error {
	return c.do(ctx, "resume job", http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/resume", nil, nil)
}

// ListExecutions returns the job's executions, newest first.
func (c *HTTPClient) ListExecutions(ctx context.Context, jobID string) ([]models.Execution, error) {
	var execs []models.Execution
	if err := c.do(ctx, "list executions", http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/executions", nil, &execs); err != nil {
		return nil, err
	}
	if execs == nil {
		execs = []models.Execution{}
	}
	return execs, nil
}

// ListAllExecutions returns the executions of every job, newest first.
func (c *HTTPClient) ListAllExecutions(ctx context.Context) ([]models.Execution, error) {
	var execs []models.Execution
	if err := c.do(ctx, "list all executions", http.MethodGet, "/executions", nil, &execs); err != nil {
		return nil, err
	}
	if execs == nil {
		execs = []models.Execution{}
	}
	return execs, nil
}

// ExecutionLog returns the persisted log of one execution, or nil when the
// scheduler has none.
func (c *HTTPClient) ExecutionLog(ctx context.Context, jobID, timestamp string) (*models.ExecutionLog, error) {
	path := fmt.Sprintf("/jobs/%s/executions/%s/log", url.PathEscape(jobID), url.PathEscape(timestamp))
	var log models.ExecutionLog
	err := c.do(ctx, "get execution log", http.MethodGet, path, nil, &log)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (c *HTTPClient) ListDependencies(ctx context.Context) ([]models.DependencyEdge, error) {
	var edges []models.DependencyEdge
	if err := c.do(ctx, "list dependencies", http.MethodGet, "/dependencies", nil, &edges); err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []models.DependencyEdge{}
	}
	return edges, nil
}

func (c *HTTPClient) CreateDependency(ctx context.Context, edge models.DependencyEdge) error {
	return c.do(ctx, "create dependency", http.MethodPost, "/dependencies", edge, nil)
}

func (c *HTTPClient) DeleteDependency(ctx context.Context, parentID, childID string) error {
	path := fmt.Sprintf("/dependencies/%s/%s", url.PathEscape(parentID), url.PathEscape(childID))
	return c.do(ctx, "delete dependency", http.MethodDelete, path, nil, nil)
}

// Ready checks that the scheduler answers its job listing.
func (c *HTTPClient) Ready(ctx context.Context) error {
	return c.do(ctx, "ready", http.MethodGet, "/jobs", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req, body != nil)

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: classifyError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: %s", ErrNotFound, errorMessage(resp.Body))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: %s", ErrRequestFailed, errorMessage(resp.Body))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: decoding response: %v", ErrRequestFailed, err)}
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// errorMessage extracts the scheduler's {"error": "..."} message.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return "no details"
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

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
