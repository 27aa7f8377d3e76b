// Package failure classifies pipeline errors into the kinds a run reports.
package failure

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/aws/smithy-go"
)

// Kind identifies a class of pipeline failure.
type Kind string

const (
	StoreUnavailable Kind = "store_unavailable"
	PartitionEmpty   Kind = "partition_empty"
	Serialization    Kind = "serialization"
	Transform        Kind = "transform"
	StatsUndefined   Kind = "stats_undefined"
	WriteFailed      Kind = "write_failed"

	// QuoteVariants marks a partition where one quote_id appears with more
	// than one (quote_text, author) pair, so quotes_agg holds more rows than
	// there are distinct ids.
	QuoteVariants Kind = "quote_variants"
)

// Recoverable reports whether a run may complete with a degenerate report
// after observing this kind.
func (k Kind) Recoverable() bool {
	return k == PartitionEmpty || k == StatsUndefined || k == QuoteVariants
}

// Error is a classified error. It wraps the underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return string(e.Kind) + ": " + e.Msg
	case e.Msg == "":
		return string(e.Kind) + ": " + e.Err.Error()
	default:
		return string(e.Kind) + ": " + e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New classifies err as kind. err may be nil.
func New(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain, or
// the empty Kind if there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err's chain carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// connectivityCodes are AWS API error codes that mean the store could not be
// reached or refused to serve the caller.
var connectivityCodes = map[string]bool{
	"AccessDeniedException":                  true,
	"UnrecognizedClientException":            true,
	"InvalidSignatureException":              true,
	"ExpiredTokenException":                  true,
	"MissingAuthenticationTokenException":    true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"ThrottlingException":                    true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"ResourceNotFoundException":              true,
}

// IsConnectivity reports whether err looks like the store being unreachable:
// network timeouts, refused or reset connections, DNS failures, AWS auth and
// throttling errors, server faults and expired deadlines.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if connectivityCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"failed to retrieve credentials",
		"no ec2 imds role found",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
