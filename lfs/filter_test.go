package lfs

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedAttributes bool

func (f fixedAttributes) IsTracked(path string) bool { return bool(f) }

// newAcceptAllFilter builds a Filter against a Batch server that accepts
// every uploaded object unconditionally: the response carries no
// actions, which means the server already has the object.
func newAcceptAllFilter(t *testing.T, tracked bool) *Filter {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"transfer":"basic","objects":[{"oid":"%s","size":5}]}`, helloOid)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	cache := NewCache(dir)
	client, err := NewClient(&ClientConfig{Endpoint: server.URL}, cache)
	require.NoError(t, err)

	return NewFilter(cache, client, fixedAttributes(tracked))
}

func TestSmudgePassthroughForNonPointerContent(t *testing.T) {
	filter := newAcceptAllFilter(t, true)
	input := []byte("not a pointer\n")

	out, err := filter.Smudge(context.Background(), "file.bin", input)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestCleanNotTrackedPassesThrough(t *testing.T) {
	filter := newAcceptAllFilter(t, false)
	input := []byte("plain text content")

	out, err := filter.Clean(context.Background(), "file.txt", input)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestCleanIdempotentOnExistingPointer(t *testing.T) {
	filter := newAcceptAllFilter(t, true)
	pointer := NewPointer(helloOid, 5)
	pointerBytes, err := EncodePointerBytes(pointer)
	require.NoError(t, err)

	out, err := filter.Clean(context.Background(), "file.bin", pointerBytes)
	require.NoError(t, err)
	assert.Equal(t, pointerBytes, out)

	out2, err := filter.Clean(context.Background(), "file.bin", out)
	require.NoError(t, err)
	assert.Equal(t, out, out2)
}

func TestCleanTrackedContentProducesPointerAndPopulatesCache(t *testing.T) {
	filter := newAcceptAllFilter(t, true)

	out, err := filter.Clean(context.Background(), "file.bin", []byte("hello"))
	require.NoError(t, err)

	pointer, err := DecodePointer(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, helloOid, pointer.Oid)
	assert.Equal(t, int64(5), pointer.Size)
	assert.True(t, filter.cache.Contains(helloOid, 5))
}

func TestSmudgeOfCleanRoundTrip(t *testing.T) {
	filter := newAcceptAllFilter(t, true)

	ctx := context.Background()
	pointerBytes, err := filter.Clean(ctx, "file.bin", []byte("hello"))
	require.NoError(t, err)

	// Cache hit: smudge does not need the server.
	smudged, err := filter.Smudge(ctx, "file.bin", pointerBytes)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(smudged))
}
