// Package errkind maps failures from remote operations to a closed set of
// kinds and user-presentable messages
package errkind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Kind is the category of a failure
type Kind int

const (
	Unknown Kind = iota
	NoConnectivity
	Timeout
	Transport
	ClientError
	ServerError
)

// String returns the kind name used in logs and metric labels
func (k Kind) String() string {
	switch k {
	case NoConnectivity:
		return "no_connectivity"
	case Timeout:
		return "timeout"
	case Transport:
		return "transport"
	case ClientError:
		return "client_error"
	case ServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether a later attempt has a reasonable chance of succeeding
func (k Kind) Retryable() bool {
	switch k {
	case NoConnectivity, Timeout, Transport, ServerError:
		return true
	default:
		return false
	}
}

// Classification is the outcome of Classify
type Classification struct {
	Kind    Kind
	Code    int // HTTP status for ClientError and ServerError, zero otherwise
	Message string
}

// String returns a compact description for logs
func (c Classification) String() string {
	if c.Code != 0 {
		return fmt.Sprintf("%s(%d)", c.Kind, c.Code)
	}
	return c.Kind.String()
}

// Retryable reports whether the failure is worth retrying. 408 and 429 are
// retryable even though they are client errors.
func (c Classification) Retryable() bool {
	if c.Kind == ClientError {
		return c.Code == 408 || c.Code == 429
	}
	return c.Kind.Retryable()
}

// StatusCoder is implemented by errors that carry an HTTP status
type StatusCoder interface {
	HTTPStatus() int
}

const (
	msgNoConnectivity = "No internet connection. Showing saved data."
	msgTimeout        = "The server took too long to respond. Showing saved data."
	msgTransport      = "Connection interrupted. Showing saved data."
	msgUnauthorized   = "Your session is no longer valid. Sign in again to sync."
	msgNotFound       = "The requested data was not found on the server."
	msgRateLimited    = "Too many requests. Try again in a moment."
	msgUnknown        = "Something went wrong. Showing saved data."
)

// Classify maps err to a Classification. It performs no I/O and never panics.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: Unknown}
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: Timeout, Message: msgTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Kind: Timeout, Message: msgTimeout}
	}

	if isNoConnectivity(err) {
		return Classification{Kind: NoConnectivity, Message: msgNoConnectivity}
	}

	if isTransport(err) {
		return Classification{Kind: Transport, Message: msgTransport}
	}

	return Classification{Kind: Unknown, Message: msgUnknown}
}

func classifyStatus(code int) Classification {
	switch {
	case code >= 500:
		return Classification{Kind: ServerError, Code: code, Message: fmt.Sprintf("Server error (%d). Showing saved data.", code)}
	case code == 401 || code == 403:
		return Classification{Kind: ClientError, Code: code, Message: msgUnauthorized}
	case code == 404:
		return Classification{Kind: ClientError, Code: code, Message: msgNotFound}
	case code == 429:
		return Classification{Kind: ClientError, Code: code, Message: msgRateLimited}
	case code >= 400:
		return Classification{Kind: ClientError, Code: code, Message: fmt.Sprintf("Request rejected by server (%d).", code)}
	default:
		return Classification{Kind: Unknown, Code: code, Message: msgUnknown}
	}
}

func isNoConnectivity(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTransport(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
