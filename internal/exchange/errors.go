package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrAmbiguous marks an order submission whose outcome is unknown: the
// request may or may not have reached the matching engine. Callers must not
// retry blindly; the pending-order marker and next-cycle reconciliation
// handle it.
var ErrAmbiguous = errors.New("order outcome unknown")

// ErrOrderNotFound is returned when an order lookup by client order ID finds
// nothing on the exchange.
var ErrOrderNotFound = errors.New("order not found")

// APIError represents an exchange API error with HTTP status and the
// exchange's own error code/message.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error %d (code %d): %s", e.Status, e.Code, e.Message)
}

// ErrorKind is the normalized error classification exposed to callers.
type ErrorKind string

const (
	// KindNone means no error.
	KindNone ErrorKind = ""
	// KindNetwork is a transient transport failure before any order could
	// have been accepted. Safe to retry for read-only calls.
	KindNetwork ErrorKind = "network"
	// KindRateLimited is an explicit throttle response.
	KindRateLimited ErrorKind = "rate_limited"
	// KindRejected is a definitive exchange rejection (insufficient balance,
	// below minimum notional, bad symbol). The order did not execute.
	KindRejected ErrorKind = "rejected"
	// KindAmbiguous is an order submission with unknown outcome.
	KindAmbiguous ErrorKind = "ambiguous"
)

// Classify maps an error from any client call to its normalized kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrAmbiguous) {
		return KindAmbiguous
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == 429 || apiErr.Status == 418 {
			return KindRateLimited
		}
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return KindRejected
		}
		return KindNetwork
	}
	return KindNetwork
}

// isTransportError reports whether err looks like a transport-level failure
// (timeout, refused connection, DNS) rather than an exchange response.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
