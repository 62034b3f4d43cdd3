package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/italolelis/fetchbox/internal/transfer"
)

// Classify maps a transport error onto a *transfer.NetworkError. Typed
// checks run first; message matching covers errors that lost their type on
// the way up.
func Classify(operation string, err error) *transfer.NetworkError {
	return &transfer.NetworkError{Kind: faultKind(err), Operation: operation, Err: err}
}

func faultKind(err error) transfer.FaultKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return transfer.FaultDNS
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return transfer.FaultConnectionReset
	}

	if isTimeout(err) {
		return transfer.FaultTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "no such host"):
		return transfer.FaultDNS
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"), strings.Contains(msg, "unexpected eof"):
		return transfer.FaultConnectionReset
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return transfer.FaultTimeout
	}

	return transfer.FaultGeneric
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
