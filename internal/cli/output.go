package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Statement or scenario failure
	ExitCommandError = 2 // Command error (bad config, missing files, etc.)
)

// CLI error codes. Statement failures use their SQLSTATE-style code instead.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeConfig     = "E002" // Config load or validation failed
	ErrCodeBackend    = "E003" // Backend could not be opened
	ErrCodeNotFound   = "E005" // Path not found
	ErrCodeCatalog    = "E010" // Catalog validation failed
	ErrCodeTestFailed = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set when the command already printed the error.
	Reported bool
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
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Palette colors text output. Colors switch off automatically when the
// writer is not a terminal (see color.NoColor).
type Palette struct {
	OK   *color.Color
	Fail *color.Color
	Warn *color.Color
	Dim  *color.Color
}

// NewPalette returns the default palette, or a colorless one.
func NewPalette(disabled bool) Palette {
	p := Palette{
		OK:   color.New(color.FgGreen, color.Bold),
		Fail: color.New(color.FgRed, color.Bold),
		Warn: color.New(color.FgYellow),
		Dim:  color.New(color.FgHiBlack),
	}
	if disabled {
		for _, c := range []*color.Color{p.OK, p.Fail, p.Warn, p.Dim} {
			c.DisableColor()
		}
	}
	return p
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool

	// Colors is used for text output; the zero value prints plain text.
	Colors Palette
}

// newFormatter builds the formatter for a command from the global flags.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
		Colors:    NewPalette(opts.NoColor),
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "42601", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	f.fprintf(f.Colors.Fail, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// commandError reports a command failure with a CLI error code. JSON
// output carries the code; text output is printed by the caller of
// Execute.
func commandError(f *OutputFormatter, code, message string, err error) error {
	exitErr := WrapExitError(ExitCommandError, message, err)
	if f.Format != "json" {
		return exitErr
	}
	if outErr := f.Error(code, exitErr.Error(), nil); outErr != nil {
		return outErr
	}
	exitErr.Reported = true
	return exitErr
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// fprintf writes to Writer in color c, or plainly when c is nil.
func (f *OutputFormatter) fprintf(c *color.Color, format string, args ...any) {
	if c == nil {
		fmt.Fprintf(f.Writer, format, args...)
		return
	}
	c.Fprintf(f.Writer, format, args...)
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
