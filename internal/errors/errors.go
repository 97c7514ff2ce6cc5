package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/smithy-go"
)

// Kind classifies an error for callers that must pick a response code or
// decide whether an operator needs to step in.
type Kind int

const (
	// Internal is anything unexpected, including malformed records.
	Internal Kind = iota
	// Unauthorized means the presented credentials were rejected.
	Unauthorized
	// NotFound means a user, secret or secret version does not exist.
	NotFound
	// PreconditionFailed means the request cannot proceed without operator
	// intervention (rotation disabled, staging labels out of order).
	PreconditionFailed
	// UpstreamFailure means a collaborator call failed (network, permission,
	// throttling).
	UpstreamFailure
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case PreconditionFailed:
		return "precondition_failed"
	case UpstreamFailure:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// Error is the typed error carried through the broker and the rotation
// coordinator.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "" && e.Err != nil:
		b.WriteString(e.Message)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind with no cause.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind caused by err.
func Wrap(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// Propagate wraps err with op. A kind already present in the chain is kept;
// otherwise fallback is applied.
func Propagate(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	kind := fallback
	var typed *Error
	if errors.As(err, &typed) {
		kind = typed.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the outermost typed error in the chain.
// Untyped errors are Internal.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Cause is one link of an error chain.
type Cause struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Details is the structured diagnostic view of an error.
type Details struct {
	Kind      string  `json:"kind"`
	Op        string  `json:"op,omitempty"`
	Message   string  `json:"message"`
	Chain     []Cause `json:"chain"`
	Service   string  `json:"service,omitempty"`
	Operation string  `json:"operation,omitempty"`
	Code      string  `json:"code,omitempty"`
	Fault     string  `json:"fault,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
	Retryable bool    `json:"retryable"`
}

// Describe builds the diagnostic view of err: its classification, every
// link of the cause chain and, when present, the AWS operation metadata.
func Describe(err error) Details {
	if err == nil {
		return Details{}
	}
	d := Details{
		Kind:      KindOf(err).String(),
		Message:   err.Error(),
		Retryable: IsRetryable(err),
	}
	var typed *Error
	if errors.As(err, &typed) {
		d.Op = typed.Op
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		d.Chain = append(d.Chain, Cause{Type: fmt.Sprintf("%T", cur), Message: cur.Error()})
	}

	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		d.Service = opErr.Service()
		d.Operation = opErr.Operation()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		d.Code = apiErr.ErrorCode()
		d.Fault = apiErr.ErrorFault().String()
	}
	var reqErr interface{ ServiceRequestID() string }
	if errors.As(err, &reqErr) {
		d.RequestID = reqErr.ServiceRequestID()
	}
	return d
}

// LogValue renders the details as a slog group.
func (d Details) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", d.Kind),
		slog.String("message", d.Message),
		slog.Bool("retryable", d.Retryable),
	}
	if d.Op != "" {
		attrs = append(attrs, slog.String("op", d.Op))
	}
	if len(d.Chain) > 0 {
		attrs = append(attrs, slog.Any("chain", d.Chain))
	}
	for _, kv := range [][2]string{
		{"service", d.Service},
		{"operation", d.Operation},
		{"code", d.Code},
		{"fault", d.Fault},
		{"request_id", d.RequestID},
	} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	return slog.GroupValue(attrs...)
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  Try: " + e.Suggestion
	}

	return msg
}

// IsRetryable checks if an error looks transient. Nothing in this module
// retries; the flag is reported so the invoking scheduler can decide.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorFault() == smithy.FaultServer {
			return true
		}
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "Throttling", "TooManyRequestsException",
			"RequestLimitExceeded", "ProvisionedThroughputExceededException":
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
