// Package sandbox submits composed scripts to a remote Judge0 execution
// engine and retrieves their decoded output.
package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ubacktest/internal/domain"
	"ubacktest/internal/util"
)

// Execution engine constants. Language id 31 is the deployment's Python 3
// runtime.
const (
	languageID        = 31
	memoryLimitKB     = 1024000
	maxProcsOrThreads = 256
)

// Judge0 status ids. 1 and 2 mean the submission is still being processed;
// 3 is a clean finish.
const (
	statusInQueue    = 1
	statusProcessing = 2
	statusAccepted   = 3
)

// Mode selects the execution protocol.
type Mode string

const (
	// ModeSync blocks on a single submission request until it finishes.
	ModeSync Mode = "sync"
	// ModeAsync submits for a token and polls the status endpoint.
	ModeAsync Mode = "async"
)

// ExecResult carries the decoded output of one finished run.
type ExecResult struct {
	Stdout string
	Stderr string
}

// Client talks to a Judge0-compatible execution engine.
type Client struct {
	baseURL     string
	apiKey      string
	mode        Mode
	maxAttempts int
	backoff     util.Backoff
	httpClient  *http.Client
	log         *slog.Logger

	// sleep is swapped out in tests to avoid real delays.
	sleep func(ctx context.Context, attempt int) error
}

// NewClient creates a sandbox client. pollBaseDelay and maxAttempts bound
// the async poll loop; they are ignored in sync mode.
func NewClient(baseURL, apiKey string, mode Mode, maxAttempts int, pollBaseDelay time.Duration) *Client {
	b := util.Backoff{Base: pollBaseDelay}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		mode:        mode,
		maxAttempts: maxAttempts,
		backoff:     b,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		log:         slog.Default().With("component", "sandbox"),
		sleep:       b.Sleep,
	}
}

// submission is the request body of a Judge0 submission.
type submission struct {
	SourceCode               string  `json:"source_code"`
	LanguageID               int     `json:"language_id"`
	CPUTimeLimit             float64 `json:"cpu_time_limit"`
	WallTimeLimit            float64 `json:"wall_time_limit"`
	MemoryLimit              int     `json:"memory_limit"`
	MaxProcessesAndOrThreads int     `json:"max_processes_and_or_threads"`
}

// submissionResult is the response of both the sync endpoint and the async
// status endpoint. String fields are base64 when base64_encoded is set.
type submissionResult struct {
	Token   string  `json:"token"`
	Stdout  *string `json:"stdout"`
	Stderr  *string `json:"stderr"`
	Message *string `json:"message"`
	Time    *string `json:"time"`
	Memory  *int    `json:"memory"`
	Status  struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

// Run executes the composed script with the given wall/cpu limit and
// returns its decoded output. Infrastructure failures surface as
// *domain.SandboxError; user code crashes ride back in Stderr.
func (c *Client) Run(ctx context.Context, source string, timeoutSec int) (*ExecResult, error) {
	sub := submission{
		SourceCode:               base64.StdEncoding.EncodeToString([]byte(source)),
		LanguageID:               languageID,
		CPUTimeLimit:             float64(timeoutSec),
		WallTimeLimit:            float64(timeoutSec),
		MemoryLimit:              memoryLimitKB,
		MaxProcessesAndOrThreads: maxProcsOrThreads,
	}

	var result *submissionResult
	var err error
	if c.mode == ModeAsync {
		result, err = c.runAsync(ctx, sub)
	} else {
		result, err = c.runSync(ctx, sub)
	}
	if err != nil {
		return nil, err
	}
	return c.decode(result, timeoutSec)
}

func (c *Client) runSync(ctx context.Context, sub submission) (*submissionResult, error) {
	var result submissionResult
	url := c.baseURL + "/submissions?base64_encoded=true&wait=true"
	if err := c.post(ctx, url, sub, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// runAsync walks the submitted → polling → finished/timed-out state
// machine. A run still queued or processing after the attempt budget is a
// timeout, reported rather than retried.
func (c *Client) runAsync(ctx context.Context, sub submission) (*submissionResult, error) {
	var created submissionResult
	url := c.baseURL + "/submissions?base64_encoded=true"
	if err := c.post(ctx, url, sub, &created); err != nil {
		return nil, err
	}
	if created.Token == "" {
		return nil, &domain.SandboxError{
			Kind: domain.SubmissionRejected,
			Msg:  "the execution engine returned no submission token",
		}
	}

	statusURL := fmt.Sprintf("%s/submissions/%s?base64_encoded=true", c.baseURL, created.Token)
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := c.sleep(ctx, attempt); err != nil {
			return nil, err
		}

		var result submissionResult
		if err := c.get(ctx, statusURL, &result); err != nil {
			return nil, err
		}
		switch result.Status.ID {
		case statusInQueue, statusProcessing:
			c.log.Debug("submission still running",
				"token", created.Token, "attempt", attempt, "status", result.Status.Description)
		default:
			return &result, nil
		}
	}

	return nil, &domain.SandboxError{
		Kind: domain.PollExhausted,
		Msg:  fmt.Sprintf("the execution did not finish within %d polls; treat this as a timeout", c.maxAttempts),
	}
}

// decode turns a finished submission into plain-text output, folding engine
// messages and resource diagnostics into stderr on failed runs.
func (c *Client) decode(r *submissionResult, timeoutSec int) (*ExecResult, error) {
	stdout, err := decodeField(r.Stdout)
	if err != nil {
		return nil, err
	}
	stderr, err := decodeField(r.Stderr)
	if err != nil {
		return nil, err
	}
	var msg string
	if r.Message != nil {
		msg, _ = decodeField(r.Message)
	}

	// Emptiness is judged on the engine's own fields. The engine reports
	// time/memory on every finished run, so the synthetic diagnostics below
	// must not enter this check.
	if stdout == "" && stderr == "" && msg == "" {
		return nil, &domain.SandboxError{
			Kind: domain.EmptyExecution,
			Msg:  "the execution produced neither output nor errors; the engine likely ran out of resources",
		}
	}

	if msg != "" {
		if stderr != "" {
			stderr += "\n"
		}
		stderr += msg
	}
	// A clean run keeps stderr empty; diagnostics ride along only when the
	// engine reported a message or a non-accepted status.
	if msg != "" || (r.Status.ID != 0 && r.Status.ID != statusAccepted) {
		if diag := diagnostics(r, timeoutSec); diag != "" {
			if stderr != "" {
				stderr += "\n"
			}
			stderr += diag
		}
	}
	return &ExecResult{Stdout: stdout, Stderr: stderr}, nil
}

// diagnostics summarizes the run's resource usage when the engine reports
// it, with hints when a limit was hit.
func diagnostics(r *submissionResult, timeoutSec int) string {
	if r.Time == nil && r.Memory == nil {
		return ""
	}
	var b bytes.Buffer
	b.WriteString("--- execution diagnostics ---")
	if r.Time != nil {
		fmt.Fprintf(&b, "\ntime: %ss (limit %ds)", *r.Time, timeoutSec)
		if sec, err := strconv.ParseFloat(*r.Time, 64); err == nil && sec >= float64(timeoutSec) {
			b.WriteString("\nthe run hit the time limit; reduce the date range or raise the timeout")
		}
	}
	if r.Memory != nil {
		fmt.Fprintf(&b, "\nmemory: %d KB (limit %d KB)", *r.Memory, memoryLimitKB)
		if *r.Memory >= memoryLimitKB {
			b.WriteString("\nthe run hit the memory limit; reduce the working set")
		}
	}
	if r.Status.Description != "" && r.Status.ID != statusAccepted {
		fmt.Fprintf(&b, "\nstatus: %s", r.Status.Description)
	}
	return b.String()
}

func decodeField(p *string) (string, error) {
	if p == nil || *p == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(*p)
	if err != nil {
		// Some deployments skip encoding on plain-ASCII fields.
		return *p, nil
	}
	return string(decoded), nil
}

func (c *Client) post(ctx context.Context, url string, body any, out *submissionResult) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.SandboxError{
			Kind: domain.SubmissionRejected,
			Msg:  fmt.Sprintf("submitting to the execution engine failed: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.SandboxError{
			Kind: domain.SubmissionRejected,
			Msg:  fmt.Sprintf("the execution engine rejected the submission with status %d: %s", resp.StatusCode, msg),
		}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(ctx context.Context, url string, out *submissionResult) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building status request: %w", err)
	}
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.SandboxError{
			Kind: domain.SubmissionRejected,
			Msg:  fmt.Sprintf("polling the execution engine failed: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.SandboxError{
			Kind: domain.SubmissionRejected,
			Msg:  fmt.Sprintf("the status endpoint returned %d: %s", resp.StatusCode, msg),
		}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Auth-Token", c.apiKey)
	}
}
