package transfer

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransferInProgress is returned when a session already owns a live transfer.
	ErrTransferInProgress = errors.New("transfer already in progress")
	// ErrNoActiveTransfer is returned when cancelling a session with nothing to cancel.
	ErrNoActiveTransfer = errors.New("no active transfer")
	// ErrSizeExceeded is returned when a transfer grows past the configured maximum.
	ErrSizeExceeded = errors.New("transfer exceeds maximum file size")
	// ErrSizeMismatch is returned when the remote sends more or fewer bytes than it announced.
	ErrSizeMismatch = errors.New("received byte count does not match content length")
	// ErrInvalidTransition is returned for a status change out of a terminal status.
	ErrInvalidTransition = errors.New("invalid transfer status transition")
)

// InvalidURLError is returned for URLs that fail validation. It never reaches the network.
type InvalidURLError struct {
	URL    string // The rejected input
	Reason string // Human-readable explanation
	Err    error  // Underlying parse error, if any
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.URL, e.Reason)
}

func (e *InvalidURLError) Unwrap() error {
	return e.Err
}

// UnreachableError is returned by the pre-check when no connection could be established.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("remote %s unreachable: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned by the pre-check when the remote did not answer in time.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("remote %s timed out: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// BadStatusError is returned when the remote answers with a non-success status.
type BadStatusError struct {
	URL        string
	StatusCode int
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("remote %s returned status %d", e.URL, e.StatusCode)
}

// FaultKind classifies network faults observed during streaming.
type FaultKind string

const (
	FaultDNS             FaultKind = "dns"
	FaultConnectionReset FaultKind = "connection_reset"
	FaultTimeout         FaultKind = "timeout"
	FaultGeneric         FaultKind = "generic"
)

// NetworkError represents a classified network fault during an active transfer.
type NetworkError struct {
	Kind      FaultKind // Classification used to pick the user-facing message
	Operation string    // The operation that failed (e.g., "connect", "read_body")
	Err       error     // Underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error (%s) during %s: %v", e.Kind, e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StorageError represents failures writing to the storage root.
type StorageError struct {
	Op   string // "reserve", "write", "commit", ...
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s of %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Fixed user-facing messages delivered in download_error events.
const (
	MsgDomainNotFound  = "Domain not found"
	MsgConnectionLost  = "Connection lost"
	MsgTimeout         = "Connection timeout"
	MsgNetworkError    = "Network error"
	MsgDownloadFailed  = "Download failed"
	MsgInvalidURL      = "Invalid URL"
	MsgAlreadyActive   = "A download is already in progress"
	MsgFileTooLarge    = "File exceeds the maximum allowed size"
	msgServerErrFormat = "Server error: %d %s"
)

// UserMessage converts an error into the human-readable message sent to clients.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var urlErr *InvalidURLError
	if errors.As(err, &urlErr) {
		return MsgInvalidURL
	}

	if errors.Is(err, ErrTransferInProgress) {
		return MsgAlreadyActive
	}

	if errors.Is(err, ErrSizeExceeded) {
		return MsgFileTooLarge
	}

	var statusErr *BadStatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf(msgServerErrFormat, statusErr.StatusCode, http.StatusText(statusErr.StatusCode))
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		switch netErr.Kind {
		case FaultDNS:
			return MsgDomainNotFound
		case FaultConnectionReset:
			return MsgConnectionLost
		case FaultTimeout:
			return MsgTimeout
		default:
			return MsgNetworkError
		}
	}

	return MsgDownloadFailed
}
