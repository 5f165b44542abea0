package errkind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	dialRefused := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}

	tests := []struct {
		name string
		err  error
		kind Kind
		code int
	}{
		{"nil", nil, Unknown, 0},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, NoConnectivity, 0},
		{"connection refused", dialRefused, NoConnectivity, 0},
		{"wrapped connection refused", &url.Error{Op: "Post", URL: "http://x", Err: dialRefused}, NoConnectivity, 0},
		{"network unreachable", fmt.Errorf("push: %w", syscall.ENETUNREACH), NoConnectivity, 0},
		{"deadline", context.DeadlineExceeded, Timeout, 0},
		{"wrapped deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), Timeout, 0},
		{"net timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, Timeout, 0},
		{"unexpected eof", &url.Error{Op: "Get", URL: "http://x", Err: io.ErrUnexpectedEOF}, Transport, 0},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), Transport, 0},
		{"bad request", &statusErr{400}, ClientError, 400},
		{"unauthorized", &statusErr{401}, ClientError, 401},
		{"not found", fmt.Errorf("fetch: %w", &statusErr{404}), ClientError, 404},
		{"rate limited", &statusErr{429}, ClientError, 429},
		{"internal error", &statusErr{500}, ServerError, 500},
		{"unavailable", &statusErr{503}, ServerError, 503},
		{"unknown", errors.New("something odd"), Unknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.code, c.Code)
			if tt.err == nil {
				assert.Empty(t, c.Message)
			} else {
				assert.NotEmpty(t, c.Message)
			}
		})
	}
}

func TestClassifyMessages(t *testing.T) {
	assert.Equal(t, "No internet connection. Showing saved data.",
		Classify(&net.DNSError{Err: "no such host"}).Message)
	assert.Equal(t, "Server error (502). Showing saved data.",
		Classify(&statusErr{502}).Message)
	assert.Equal(t, "Request rejected by server (422).",
		Classify(&statusErr{422}).Message)
}

func TestClassificationRetryable(t *testing.T) {
	assert.True(t, Classify(&net.DNSError{Err: "no such host"}).Retryable())
	assert.True(t, Classify(context.DeadlineExceeded).Retryable())
	assert.True(t, Classify(&statusErr{500}).Retryable())
	assert.True(t, Classify(&statusErr{429}).Retryable())
	assert.False(t, Classify(&statusErr{400}).Retryable())
	assert.False(t, Classify(errors.New("x")).Retryable())
}

func TestClassificationString(t *testing.T) {
	assert.Equal(t, "server_error(503)", Classify(&statusErr{503}).String())
	assert.Equal(t, "timeout", Classify(context.DeadlineExceeded).String())
}
