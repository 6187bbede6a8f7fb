package lfs

import "fmt"

// ErrInvalidPointer is returned when pointer bytes fail the structural
// checks in the pointer codec.
type ErrInvalidPointer struct {
	Reason string
}

func (e *ErrInvalidPointer) Error() string {
	return fmt.Sprintf("invalid pointer: %s", e.Reason)
}

// ErrInvalidConfig covers an unparseable or missing endpoint. An attempt
// to attach credentials to a non-HTTPS URL is reported as
// ErrInsecureCredential instead.
type ErrInvalidConfig struct {
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid lfs config: %s", e.Reason)
}

// ErrInsecureCredential is the configuration error raised specifically
// when credentials would be sent over a non-HTTPS URL. It is a separate
// type: errors.As with an *ErrInvalidConfig target does not match it.
type ErrInsecureCredential struct {
	URL string
}

func (e *ErrInsecureCredential) Error() string {
	return fmt.Sprintf("refusing to send credentials over insecure url %q", e.URL)
}

// ErrTransport wraps a network failure, a non-2xx HTTP status, or a
// malformed JSON response body.
type ErrTransport struct {
	Reason string
	Status int // 0 when not an HTTP-status failure
}

func (e *ErrTransport) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("lfs transport error: %s (status %d)", e.Reason, e.Status)
	}
	return fmt.Sprintf("lfs transport error: %s", e.Reason)
}

// ErrBatchProtocol covers a well-formed JSON Batch response that
// nonetheless violates the Batch schema or lacks a required action for
// an object the caller requested.
type ErrBatchProtocol struct {
	Reason string
}

func (e *ErrBatchProtocol) Error() string {
	return fmt.Sprintf("lfs batch protocol error: %s", e.Reason)
}

// ErrIntegrity is raised when a computed SHA-256 disagrees with the
// expected OID, whether during cache insertion or a download.
type ErrIntegrity struct {
	Expected string
	Actual   string
}

func (e *ErrIntegrity) Error() string {
	return fmt.Sprintf("integrity error: expected oid %s, got %s", e.Expected, e.Actual)
}

// ErrSizeMismatch is raised when a transferred byte count disagrees with
// the declared pointer size.
type ErrSizeMismatch struct {
	Expected int64
	Actual   int64
}

func (e *ErrSizeMismatch) Error() string {
	return fmt.Sprintf("size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
}

// ErrCacheIO wraps a filesystem error encountered while accessing the
// object cache.
type ErrCacheIO struct {
	Reason string
}

func (e *ErrCacheIO) Error() string {
	return fmt.Sprintf("cache io error: %s", e.Reason)
}

// ErrNotTracked is informational: clean was asked to run on a path that
// is not under LFS tracking. No function in this package returns it:
// Clean handles an untracked path by passthrough, returning the content
// unchanged with a nil error.
type ErrNotTracked struct {
	Path string
}

func (e *ErrNotTracked) Error() string {
	return fmt.Sprintf("path not tracked by lfs: %s", e.Path)
}
