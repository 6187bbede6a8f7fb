package lfs

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDownloadBatchScenario exercises a mock batch server that returns
// a download action whose href serves b"hello"; calling Download
// populates the cache and the bytes round-trip.
func TestDownloadBatchScenario(t *testing.T) {
	var objectsURL string

	mux := http.NewServeMux()
	mux.HandleFunc("/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.git-lfs+json; charset=utf-8", r.Header.Get("Accept"))
		fmt.Fprintf(w, `{"transfer":"basic","objects":[{"oid":"%s","size":5,"actions":{"download":{"href":"%s"}}}]}`, helloOid, objectsURL)
	})
	mux.HandleFunc("/objects/"+helloOid, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	objectsURL = server.URL + "/objects/" + helloOid

	dir := t.TempDir()
	cache := NewCache(dir)
	client, err := NewClient(&ClientConfig{Endpoint: server.URL}, cache)
	require.NoError(t, err)

	pointer := NewPointer(helloOid, 5)
	content, err := client.DownloadOne(context.Background(), pointer)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.True(t, cache.Contains(helloOid, 5))
}

func TestDownloadIntegrityFailureLeavesNoCacheFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"transfer":"basic","objects":[{"oid":"%s","size":5,"actions":{"download":{"href":"http://%s/bad"}}}]}`, helloOid, r.Host)
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "wrong content")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	cache := NewCache(dir)
	client, err := NewClient(&ClientConfig{Endpoint: server.URL}, cache)
	require.NoError(t, err)

	pointer := NewPointer(helloOid, 5)
	err = client.Download(context.Background(), []*Pointer{pointer})
	require.Error(t, err)
	assert.False(t, cache.Contains(helloOid, 5))
}

func TestUploadSkipsWhenNoUploadActionPresent(t *testing.T) {
	var uploadCalled bool
	mux := http.NewServeMux()
	mux.HandleFunc("/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		// No "upload" action: server already has the object.
		fmt.Fprintf(w, `{"transfer":"basic","objects":[{"oid":"%s","size":5}]}`, helloOid)
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		uploadCalled = true
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	cache := NewCache(dir)
	client, err := NewClient(&ClientConfig{Endpoint: server.URL}, cache)
	require.NoError(t, err)

	pointer := NewPointer(helloOid, 5)
	err = client.UploadOne(context.Background(), pointer, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.False(t, uploadCalled)
}

func TestUploadPutsToActionHref(t *testing.T) {
	var uploadedBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"transfer":"basic","objects":[{"oid":"%s","size":5,"actions":{"upload":{"href":"%s/upload"}}}]}`, helloOid, "http://"+r.Host)
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		uploadedBody = string(body)
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	cache := NewCache(dir)
	client, err := NewClient(&ClientConfig{Endpoint: server.URL}, cache)
	require.NoError(t, err)

	pointer := NewPointer(helloOid, 5)
	err = client.UploadOne(context.Background(), pointer, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", uploadedBody)
}

func TestUploadAggregatesPerObjectFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"transfer":"basic","objects":[{"oid":"%s","size":5,"error":{"code":422,"message":"rejected"}}]}`, helloOid)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	cache := NewCache(dir)
	client, err := NewClient(&ClientConfig{Endpoint: server.URL}, cache)
	require.NoError(t, err)

	pointer := NewPointer(helloOid, 5)
	err = client.UploadOne(context.Background(), pointer, strings.NewReader("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"transfer":"basic","objects":[]}`)
	})
	server := httptest.NewTLSServer(mux)
	defer server.Close()

	dir := t.TempDir()
	cache := NewCache(dir)
	client, err := NewClient(&ClientConfig{Endpoint: server.URL, Token: "abc123"}, cache)
	require.NoError(t, err)
	client.httpClient.Transport.(*http.Transport).TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	err = client.Download(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc123", gotAuth)
}
