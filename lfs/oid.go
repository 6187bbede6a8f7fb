package lfs

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"regexp"

	"github.com/pkg/errors"
)

// oidPattern matches a well-formed SHA-256 hex digest: 64 lowercase hex
// characters. Every OID accepted by this package satisfies it.
var oidPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsValidOID reports whether s is a well-formed SHA-256 hex digest.
func IsValidOID(s string) bool {
	return oidPattern.MatchString(s)
}

// HashingSink is a write-through wrapper around an inner io.Writer: every
// byte written is forwarded to the inner writer and absorbed by a
// streaming SHA-256. It never buffers bytes itself, so partial writes
// from the caller are transparent and nothing is silently dropped or
// reordered.
type HashingSink struct {
	inner io.Writer
	hash  hash.Hash
	size  int64
}

// NewHashingSink wraps inner in a HashingSink. inner may be a file, an
// in-memory buffer, or io.Discard when only the digest is wanted.
func NewHashingSink(inner io.Writer) *HashingSink {
	return &HashingSink{inner: inner, hash: sha256.New()}
}

// Write implements io.Writer. The returned count and error come from the
// inner writer; the hash always observes exactly the bytes it reports
// having absorbed.
func (s *HashingSink) Write(p []byte) (int, error) {
	n, err := s.inner.Write(p)
	if n > 0 {
		// Only hash the bytes actually accepted by the inner writer, so a
		// short write never makes the digest diverge from the inner
		// sink's contents.
		s.hash.Write(p[:n])
		s.size += int64(n)
	}
	return n, err
}

// OID returns the lowercase hex SHA-256 digest of every byte written so
// far. Safe to call before all writes are done, though the result is
// then only a digest of the bytes written up to that point.
func (s *HashingSink) OID() string {
	return hex.EncodeToString(s.hash.Sum(nil))
}

// Size returns the number of bytes written so far.
func (s *HashingSink) Size() int64 {
	return s.size
}

// HashReader streams r through a HashingSink discarding the bytes (no
// inner writer), returning the OID and byte count of the stream. Used
// wherever only the identity of content is needed, e.g. computing a
// pointer for a file already on disk.
func HashReader(r io.Reader) (oid string, size int64, err error) {
	sink := NewHashingSink(io.Discard)
	if _, err := io.Copy(sink, r); err != nil {
		return "", 0, errors.Wrap(err, "hash reader")
	}
	return sink.OID(), sink.Size(), nil
}
