package domain

import "fmt"

// The pipeline's error taxonomy. Each stage reports failures through one of
// these types so the transport layer can map them to status codes without
// string matching.

// UserInputError rejects malformed form inputs before any network call.
type UserInputError struct {
	Msg string
}

func (e *UserInputError) Error() string { return e.Msg }

// UpstreamDataKind classifies market-data failures.
type UpstreamDataKind string

const (
	DataUnavailable   UpstreamDataKind = "unavailable"
	DataTooSparse     UpstreamDataKind = "too_sparse"
	DataShapeMismatch UpstreamDataKind = "shape_mismatch"
	RangeTooLarge     UpstreamDataKind = "range_too_large"
)

// UpstreamDataError reports that the quote API returned missing, malformed,
// or oversized data. These abort the pipeline with a caller-facing message.
type UpstreamDataError struct {
	Kind UpstreamDataKind
	Msg  string
}

func (e *UpstreamDataError) Error() string { return e.Msg }

// SandboxKind classifies execution-engine failures that are not
// attributable to the user's code.
type SandboxKind string

const (
	SubmissionRejected SandboxKind = "submission_rejected"
	PollExhausted      SandboxKind = "poll_exhausted"
	EmptyExecution     SandboxKind = "empty_execution"
	NoEnginePayload    SandboxKind = "no_engine_payload"
)

// SandboxError reports an infrastructure failure of the remote execution
// engine: a rejected submission, an exhausted poll budget, a run that
// produced no output at all, or output with no recoverable payload.
type SandboxError struct {
	Kind SandboxKind
	Msg  string
}

func (e *SandboxError) Error() string { return e.Msg }

// ResultIntegrityError reports that a simulated result violated a
// structural or numeric invariant. It indicates an internal defect and is
// always fatal; there is no recovery path.
type ResultIntegrityError struct {
	Msg string
}

func (e *ResultIntegrityError) Error() string {
	return fmt.Sprintf("result integrity violation: %s", e.Msg)
}

// RateLimitedError rejects a run requested while another is in flight.
type RateLimitedError struct{}

func (e *RateLimitedError) Error() string {
	return "another backtest is currently running; please try again shortly"
}
