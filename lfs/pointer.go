package lfs

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rubyist/tracerx"
)

// Version is the canonical LFS pointer spec URI this package encodes and
// requires on decode.
const Version = "https://git-lfs.github.com/spec/v1"

// maxPointerSize bounds how many bytes a blob may have and still be
// considered a pointer candidate.
const maxPointerSize = 1024

// Pointer is the immutable value that stands in for a large file's
// content inside Git history.
type Pointer struct {
	Version string
	Oid     string
	Size    int64
}

// NewPointer builds a Pointer with the canonical version string.
func NewPointer(oid string, size int64) *Pointer {
	return &Pointer{Version: Version, Oid: oid, Size: size}
}

// EncodePointer writes the three-line, LF-terminated, US-ASCII pointer
// representation for p to w, in the fixed order version/oid/size.
// Returns the number of bytes written.
func EncodePointer(w io.Writer, p *Pointer) (int, error) {
	version := p.Version
	if version == "" {
		version = Version
	}
	body := fmt.Sprintf("version %s\noid sha256:%s\nsize %d\n", version, p.Oid, p.Size)
	n, err := io.WriteString(w, body)
	if err != nil {
		return n, errors.Wrap(err, "encode pointer")
	}
	return n, nil
}

// EncodePointerBytes is a convenience wrapper around EncodePointer for
// callers that want the raw bytes directly.
func EncodePointerBytes(p *Pointer) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := EncodePointer(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePointer reads up to maxPointerSize+1 bytes from r and decodes
// them as a Pointer. Decoding is permissive on the relative order of the
// oid and size lines but requires version first.
func DecodePointer(r io.Reader) (*Pointer, error) {
	buf := make([]byte, maxPointerSize+1)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Wrap(err, "decode pointer")
	}
	data := buf[:n]
	if len(data) > maxPointerSize {
		return nil, &ErrInvalidPointer{Reason: "exceeds 1024 byte pointer size limit"}
	}
	return decodePointerBytes(data)
}

func decodePointerBytes(data []byte) (*Pointer, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var (
		version   string
		oid       string
		size      int64
		sawSize   bool
		lineIndex int
	)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			return nil, &ErrInvalidPointer{Reason: "blank line in pointer"}
		}

		switch {
		case strings.HasPrefix(line, "version "):
			if lineIndex != 0 {
				return nil, &ErrInvalidPointer{Reason: "version line must come first"}
			}
			if version != "" {
				return nil, &ErrInvalidPointer{Reason: "duplicate version line"}
			}
			version = strings.TrimPrefix(line, "version ")
			if version != Version {
				return nil, &ErrInvalidPointer{Reason: fmt.Sprintf("unsupported version %q", version)}
			}

		case strings.HasPrefix(line, "oid "):
			if lineIndex == 0 {
				return nil, &ErrInvalidPointer{Reason: "version line must come first"}
			}
			if oid != "" {
				return nil, &ErrInvalidPointer{Reason: "duplicate oid line"}
			}
			rest := strings.TrimPrefix(line, "oid ")
			if !strings.HasPrefix(rest, "sha256:") {
				return nil, &ErrInvalidPointer{Reason: "oid must be prefixed with sha256:"}
			}
			hexDigest := strings.TrimPrefix(rest, "sha256:")
			if !IsValidOID(hexDigest) {
				return nil, &ErrInvalidPointer{Reason: "oid is not a well-formed 64-char hex sha256"}
			}
			oid = hexDigest

		case strings.HasPrefix(line, "size "):
			if lineIndex == 0 {
				return nil, &ErrInvalidPointer{Reason: "version line must come first"}
			}
			if sawSize {
				return nil, &ErrInvalidPointer{Reason: "duplicate size line"}
			}
			rest := strings.TrimPrefix(line, "size ")
			parsed, perr := strconv.ParseInt(rest, 10, 64)
			if perr != nil || parsed < 0 || rest != strconv.FormatInt(parsed, 10) {
				return nil, &ErrInvalidPointer{Reason: "size is not a non-negative decimal integer"}
			}
			size = parsed
			sawSize = true

		default:
			return nil, &ErrInvalidPointer{Reason: fmt.Sprintf("unexpected line %q", line)}
		}
		lineIndex++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "decode pointer")
	}

	if version == "" {
		return nil, &ErrInvalidPointer{Reason: "missing version line"}
	}
	if oid == "" {
		return nil, &ErrInvalidPointer{Reason: "missing oid line"}
	}
	if !sawSize {
		return nil, &ErrInvalidPointer{Reason: "missing size line"}
	}

	return &Pointer{Version: version, Oid: oid, Size: size}, nil
}

// IsPointer reports whether content decodes as a valid Pointer and is at
// most maxPointerSize bytes.
func IsPointer(content []byte) bool {
	if len(content) > maxPointerSize {
		return false
	}
	_, err := decodePointerBytes(content)
	if err != nil {
		tracerx.Printf("lfs: not a pointer: %v", err)
		return false
	}
	return true
}
