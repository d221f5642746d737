// Package remote is the boundary to the remote calendar provider. It wraps
// the Google Calendar API behind a Client interface and classifies failures
// into typed kinds so callers pattern-match on a type, never on message text.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"google.golang.org/api/googleapi"
)

// Kind classifies a remote call failure.
type Kind int

const (
	// KindRemote is any provider-side failure not covered below.
	KindRemote Kind = iota
	// KindTransport covers DNS failures, refused connections and timeouts.
	// The sync engine flips to offline on these and waits for recovery.
	KindTransport
	// KindAuth means the stored credentials were rejected; sync passes
	// no-op until re-authorization happens externally.
	KindAuth
	// KindStaleToken means an incremental sync token expired; the caller
	// falls back to a full windowed listing for that calendar.
	KindStaleToken
	// KindNotFound means the referenced calendar or event does not exist
	// remotely.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindStaleToken:
		return "stale_token"
	case KindNotFound:
		return "not_found"
	default:
		return "remote"
	}
}

// Error is a classified remote failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap classifies err and attaches the operation name. Returns nil for nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: classify(err), Op: op, Err: err}
}

// classify maps an underlying error to a Kind. Google API status codes take
// precedence; anything that smells like the network layer is transport.
func classify(err error) Kind {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 401, 403:
			return KindAuth
		case 404:
			return KindNotFound
		case 410:
			return KindStaleToken
		default:
			return KindRemote
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return KindTransport
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return KindTransport
	}

	return KindRemote
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.Kind == kind
}

// IsTransport reports whether err is a network-class failure.
func IsTransport(err error) bool { return IsKind(err, KindTransport) }

// IsAuth reports whether err is an authorization failure.
func IsAuth(err error) bool { return IsKind(err, KindAuth) }

// IsStaleToken reports whether err is an expired incremental sync token.
func IsStaleToken(err error) bool { return IsKind(err, KindStaleToken) }

// IsNotFound reports whether err is a missing remote resource.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }
