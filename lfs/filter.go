package lfs

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/rubyist/tracerx"
)

// Filter is the transformation engine bridging Git's object database and
// the LFS content store.
type Filter struct {
	cache      *Cache
	client     *Client
	attributes AttributesProvider
}

// NewFilter builds a Filter from its collaborators. cache and client may
// be shared across Filters; attributes is consulted by every Clean call
// whose content is not already a pointer.
func NewFilter(cache *Cache, client *Client, attributes AttributesProvider) *Filter {
	return &Filter{cache: cache, client: client, attributes: attributes}
}

// Clean transforms working-tree bytes into pointer bytes:
//
//  1. If content already decodes as a valid Pointer, it is returned
//     verbatim (idempotence).
//  2. If path is not LFS-tracked, content is returned unchanged.
//  3. Otherwise content is streamed into the cache, a Pointer is
//     encoded, an upload is performed, and the pointer bytes are
//     returned.
func (f *Filter) Clean(ctx context.Context, path string, content []byte) ([]byte, error) {
	start := time.Now()
	defer func() {
		tracerx.PerformanceSince("clean "+path, start)
	}()

	if IsPointer(content) {
		return content, nil
	}

	if !f.attributes.IsTracked(path) {
		return content, nil
	}

	oid, size, err := HashReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	if err := f.cache.Insert(oid, size, bytes.NewReader(content)); err != nil {
		return nil, err
	}

	pointer := NewPointer(oid, size)
	pointerBytes, err := EncodePointerBytes(pointer)
	if err != nil {
		return nil, err
	}

	if err := f.client.UploadOne(ctx, pointer, bytes.NewReader(content)); err != nil {
		return nil, err
	}

	return pointerBytes, nil
}

// Smudge transforms pointer bytes back into working-tree content:
//
//  1. If pointerBytes fails to decode, it is returned unchanged
//     (passthrough for non-LFS content).
//  2. If the cache already holds oid at the right size, its bytes are
//     returned.
//  3. Otherwise a download is performed, populating the cache, and the
//     bytes are returned.
func (f *Filter) Smudge(ctx context.Context, path string, pointerBytes []byte) ([]byte, error) {
	start := time.Now()
	defer func() {
		tracerx.PerformanceSince("smudge "+path, start)
	}()

	pointer, err := DecodePointer(bytes.NewReader(pointerBytes))
	if err != nil {
		tracerx.Printf("lfs: smudge passthrough for %s: %v", path, err)
		return pointerBytes, nil
	}

	if f.cache.Contains(pointer.Oid, pointer.Size) {
		r, _, err := f.cache.Open(pointer.Oid)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}

	content, err := f.client.DownloadOne(ctx, pointer)
	if err != nil {
		return nil, err
	}
	return content, nil
}
