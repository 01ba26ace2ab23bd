package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/coordsys/internal/transform"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Invalid scene, disconnected or stale result, replay mismatch
	ExitCommandError = 2 // Command error (unreadable file, database not found, etc.)
)

// Error codes reported by commands. Scene problems carry the scene
// package's own codes (E2xx).
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E005" // Path or name not found
	ErrCodeDisconnected = "E301" // No path between the requested nodes
	ErrCodeStale        = "E302" // Resolved transform outside its validity window
	ErrCodeStore        = "E303" // Session database error
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E204", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// textRenderer is implemented by results with a multi-line text form.
type textRenderer interface {
	RenderText(w io.Writer, verbose bool)
}

// Success outputs a successful result in the configured format. In text
// mode, results implementing RenderText render themselves.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if r, ok := data.(textRenderer); ok {
		r.RenderText(f.Writer, f.Verbose)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if r, ok := details.(textRenderer); ok {
		r.RenderText(f.Writer, f.Verbose)
	} else if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// TransformView is the JSON form of a transform. Unbounded window edges
// are null, since JSON has no infinity.
type TransformView struct {
	Rotation    [4]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
	Error       float64    `json:"error"`
	Start       *float64   `json:"start"`
	Expiration  *float64   `json:"expiration"`
	Never       bool       `json:"never,omitempty"`
}

// NewTransformView converts t for output.
func NewTransformView(t transform.Transform) TransformView {
	q, v := t.Rotation(), t.Translation()
	view := TransformView{
		Rotation:    [4]float64{q.W, q.V[0], q.V[1], q.V[2]},
		Translation: [3]float64{v[0], v[1], v[2]},
		Error:       t.Error(),
		Never:       t.IsNeverValid(),
	}
	if view.Never {
		return view
	}
	if s := t.Start(); !s.IsInf() {
		f := float64(s)
		view.Start = &f
	}
	if e := t.Expiration(); !e.IsInf() {
		f := float64(e)
		view.Expiration = &f
	}
	return view
}

func (v TransformView) window() string {
	if v.Never {
		return "never"
	}
	edge := func(p *float64, unbounded string) string {
		if p == nil {
			return unbounded
		}
		return fmt.Sprintf("%g", *p)
	}
	return fmt.Sprintf("[%s, %s]", edge(v.Start, "-inf"), edge(v.Expiration, "+inf"))
}
