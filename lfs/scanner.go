package lfs

import (
	"bytes"
	"time"

	"github.com/rubyist/tracerx"
)

// WrappedPointer pairs a decoded Pointer with the tree path and blob
// identifier it was found at, mirroring the reference tool's own
// scanner result shape.
type WrappedPointer struct {
	Name    string
	BlobID  string
	Pointer *Pointer
}

// TreeEntry is a candidate blob discovered while walking a ref's tree:
// small enough that it might be a pointer, but not yet decoded.
type TreeEntry struct {
	BlobID string
	Path   string
	Size   int64
}

// TreeLister is supplied by the host: it already has the repository
// open, so this package never shells out to git itself. It lists every
// blob reachable from ref no larger than maxPointerSize bytes.
type TreeLister interface {
	ListTree(ref string) ([]TreeEntry, error)
}

// BlobReader reads the raw bytes of a blob by its identifier, again
// supplied by the host.
type BlobReader interface {
	ReadBlob(blobID string) ([]byte, error)
}

// ScanTree returns every WrappedPointer found in the tree at ref.
// Differs from ScanUnpushed in that multiple paths with identical
// content are all reported, since each occupies a distinct tree entry.
func ScanTree(lister TreeLister, reader BlobReader, ref string) ([]*WrappedPointer, error) {
	start := time.Now()
	defer func() {
		tracerx.PerformanceSince("scan tree", start)
	}()

	entries, err := lister.ListTree(ref)
	if err != nil {
		return nil, err
	}

	pointers := make([]*WrappedPointer, 0, len(entries))
	for _, entry := range entries {
		content, err := reader.ReadBlob(entry.BlobID)
		if err != nil {
			tracerx.Printf("lfs: scan tree: cannot read blob %s: %v", entry.BlobID, err)
			continue
		}
		pointer, err := decodePointerBytes(content)
		if err != nil {
			continue
		}
		pointers = append(pointers, &WrappedPointer{Name: entry.Path, BlobID: entry.BlobID, Pointer: pointer})
	}
	return pointers, nil
}

// UnpushedLister is supplied by the host: it lists candidate blobs added
// in local history but not reachable from any remote-tracking ref.
type UnpushedLister interface {
	ListUnpushed() ([]TreeEntry, error)
}

// ScanUnpushed scans history for all LFS pointers which have been added
// but not pushed to any remote, reporting each unique oid once only
// even when more than one path uses the same content.
func ScanUnpushed(lister UnpushedLister, reader BlobReader) ([]*WrappedPointer, error) {
	start := time.Now()
	defer func() {
		tracerx.PerformanceSince("scan unpushed", start)
	}()

	entries, err := lister.ListUnpushed()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(entries))
	pointers := make([]*WrappedPointer, 0, len(entries))
	for _, entry := range entries {
		content, err := reader.ReadBlob(entry.BlobID)
		if err != nil {
			tracerx.Printf("lfs: scan unpushed: cannot read blob %s: %v", entry.BlobID, err)
			continue
		}
		pointer, err := decodePointerBytes(bytes.TrimRight(content, "\x00"))
		if err != nil {
			continue
		}
		if seen[pointer.Oid] {
			continue
		}
		seen[pointer.Oid] = true
		pointers = append(pointers, &WrappedPointer{Name: entry.Path, BlobID: entry.BlobID, Pointer: pointer})
	}
	return pointers, nil
}
