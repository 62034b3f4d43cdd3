package transfer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "dns", err: &NetworkError{Kind: FaultDNS, Operation: "connect"}, want: "Domain not found"},
		{name: "reset", err: &NetworkError{Kind: FaultConnectionReset, Operation: "read_body"}, want: "Connection lost"},
		{name: "timeout", err: &NetworkError{Kind: FaultTimeout, Operation: "read_body"}, want: "Connection timeout"},
		{name: "generic network", err: &NetworkError{Kind: FaultGeneric, Operation: "connect"}, want: "Network error"},
		{name: "wrapped network", err: fmt.Errorf("stream: %w", &NetworkError{Kind: FaultDNS}), want: "Domain not found"},
		{name: "bad status", err: &BadStatusError{StatusCode: 404}, want: "Server error: 404 Not Found"},
		{name: "invalid url", err: &InvalidURLError{URL: "ftp://x", Reason: "scheme"}, want: "Invalid URL"},
		{name: "in progress", err: ErrTransferInProgress, want: "A download is already in progress"},
		{name: "too large", err: fmt.Errorf("write: %w", ErrSizeExceeded), want: "File exceeds the maximum allowed size"},
		{name: "storage", err: &StorageError{Op: "write", Path: "/x", Err: errors.New("disk full")}, want: "Download failed"},
		{name: "unknown", err: errors.New("boom"), want: "Download failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{
			err:  &InvalidURLError{URL: "ftp://host/a", Reason: "scheme must be http or https"},
			want: `invalid url "ftp://host/a": scheme must be http or https`,
		},
		{
			err:  &BadStatusError{URL: "https://x/a", StatusCode: 503},
			want: "remote https://x/a returned status 503",
		},
		{
			err:  &NetworkError{Kind: FaultTimeout, Operation: "read_body", Err: errors.New("i/o timeout")},
			want: "network error (timeout) during read_body: i/o timeout",
		},
		{
			err:  &StorageError{Op: "commit", Path: "/d/a.zip", Err: errors.New("permission denied")},
			want: "storage error during commit of /d/a.zip: permission denied",
		},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")

	for _, err := range []error{
		&InvalidURLError{Err: cause},
		&UnreachableError{Err: cause},
		&TimeoutError{Err: cause},
		&NetworkError{Err: cause},
		&StorageError{Err: cause},
	} {
		wrapped := fmt.Errorf("context: %w", err)
		if !errors.Is(wrapped, cause) {
			t.Errorf("errors.Is(%T) should find cause in wrapped chain", err)
		}
	}
}
