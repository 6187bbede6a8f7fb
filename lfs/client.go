package lfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rubyist/tracerx"
	"github.com/ssgelm/cookiejarparser"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

const (
	mimeType = "application/vnd.git-lfs+json"
)

// Client is the Batch HTTP client. It is immutable after construction
// and safe to share across goroutines; each batch call is independent
// and keeps no cross-call state.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	cache      *Cache
}

// NewClient builds a Client from cfg, wiring up an HTTP/2-aware
// transport, an optional SOCKS5 proxy dialer, and a cookie jar (loaded
// from cfg.CookieFile when set, empty otherwise). cache is used by Download and DownloadToFile to stream bytes in
// with integrity verification.
func NewClient(cfg *ClientConfig, cache *Cache) (*Client, error) {
	if err := cfg.checkSecure(); err != nil {
		return nil, err
	}

	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, &ErrInvalidConfig{Reason: "invalid proxy url: " + err.Error()}
		}
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, &ErrInvalidConfig{Reason: "cannot build proxy dialer: " + err.Error()}
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		tracerx.Printf("lfs: http2 not configured: %v", err)
	}

	httpClient := &http.Client{Transport: transport, Timeout: 0}

	if cfg.CookieFile != "" {
		jar, err := cookiejarparser.LoadCookieJarFile(cfg.CookieFile)
		if err != nil {
			return nil, &ErrInvalidConfig{Reason: "cannot load cookie file: " + err.Error()}
		}
		httpClient.Jar = jar
	} else {
		jar, err := newEmptyJar()
		if err != nil {
			return nil, &ErrInvalidConfig{Reason: "cannot build cookie jar: " + err.Error()}
		}
		httpClient.Jar = jar
	}

	return &Client{config: cfg, httpClient: httpClient, cache: cache}, nil
}

// newEmptyJar builds a bare in-memory cookie jar for clients with no
// CookieFile configured, so a session cookie set by a Batch response is
// still carried into the object transfer requests that follow it within
// the same Client.
func newEmptyJar() (http.CookieJar, error) {
	return cookiejar.New(nil)
}

// Source yields the bytes to upload for a single object.
type Source interface {
	io.Reader
}

// UploadItem pairs a Pointer with the source of its bytes.
type UploadItem struct {
	Pointer *Pointer
	Source  Source
}

// objectFailure records a per-object error collected during a batch
// operation; each failure carries its own object detail rather than
// aborting the whole batch.
type objectFailure struct {
	Oid string
	Err error
}

func (f objectFailure) Error() string {
	return fmt.Sprintf("object %s: %v", f.Oid, f.Err)
}

// batchFailure aggregates objectFailures from one batch call.
type batchFailure struct {
	mu       sync.Mutex
	failures []objectFailure
}

func (b *batchFailure) Error() string {
	msg := fmt.Sprintf("%d object(s) failed", len(b.failures))
	for _, f := range b.failures {
		msg += "; " + f.Error()
	}
	return msg
}

func (b *batchFailure) add(oid string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, objectFailure{Oid: oid, Err: err})
}

func (b *batchFailure) errOrNil() error {
	if len(b.failures) == 0 {
		return nil
	}
	return b
}

// doBatch POSTs req to the Batch API and returns the parsed response.
func (c *Client) doBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	start := time.Now()
	defer func() {
		tracerx.PerformanceSince("batch "+string(req.Operation), start)
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal batch request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BatchURL(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build batch request")
	}
	httpReq.Header.Set("Accept", mimeType+"; charset=utf-8")
	httpReq.Header.Set("Content-Type", mimeType+"; charset=utf-8")
	c.applyAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ErrTransport{Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrTransport{Reason: "reading batch response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ErrTransport{Reason: "batch request failed: " + string(respBody), Status: resp.StatusCode}
	}

	return ParseBatchResponse(respBody)
}

// applyAuth sets the Authorization header: token overrides basic;
// anonymous if neither is set.
func (c *Client) applyAuth(req *http.Request) {
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
		return
	}
	if c.config.BasicUser != "" {
		req.SetBasicAuth(c.config.BasicUser, c.config.BasicPass)
	}
}

// Upload negotiates and performs an upload batch for items. Per-object
// failures are collected; the call returns success only if every object
// either uploaded or was already present on the server.
func (c *Client) Upload(ctx context.Context, items []UploadItem) error {
	objects := make([]BatchObject, 0, len(items))
	byOid := make(map[string]UploadItem, len(items))
	for _, item := range items {
		objects = append(objects, BatchObject{Oid: item.Pointer.Oid, Size: item.Pointer.Size})
		byOid[item.Pointer.Oid] = item
	}

	resp, err := c.doBatch(ctx, NewBatchRequest(OperationUpload, c.config.Ref, objects))
	if err != nil {
		return err
	}

	failures := &batchFailure{}
	group, gctx := errgroup.WithContext(ctx)
	for _, obj := range resp.Objects {
		obj := obj
		item, ok := byOid[obj.Oid]
		if !ok {
			continue
		}
		group.Go(func() error {
			if obj.Error != nil {
				failures.add(obj.Oid, obj.Error)
				return nil
			}
			action := obj.HonoredAction("upload")
			if action == nil {
				// Server already has the object: success, nothing to send.
				return nil
			}
			if err := c.putObject(gctx, action, item); err != nil {
				failures.add(obj.Oid, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return errors.Wrap(err, "upload batch")
	}
	return failures.errOrNil()
}

func (c *Client) putObject(ctx context.Context, action *Action, item UploadItem) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, action.Href, item.Source)
	if err != nil {
		return errors.Wrap(err, "build upload request")
	}
	req.ContentLength = item.Pointer.Size
	for k, v := range action.Header {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ErrTransport{Reason: err.Error()}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ErrTransport{Reason: "upload failed", Status: resp.StatusCode}
	}
	return nil
}

// UploadOne is the single-object convenience form of Upload.
func (c *Client) UploadOne(ctx context.Context, pointer *Pointer, content io.Reader) error {
	return c.Upload(ctx, []UploadItem{{Pointer: pointer, Source: content}})
}

// Download negotiates and performs a download batch for pointers,
// streaming each object into the cache with integrity verification.
// Per-object failures are collected the same way as Upload.
func (c *Client) Download(ctx context.Context, pointers []*Pointer) error {
	objects := make([]BatchObject, 0, len(pointers))
	byOid := make(map[string]*Pointer, len(pointers))
	for _, p := range pointers {
		objects = append(objects, BatchObject{Oid: p.Oid, Size: p.Size})
		byOid[p.Oid] = p
	}

	resp, err := c.doBatch(ctx, NewBatchRequest(OperationDownload, c.config.Ref, objects))
	if err != nil {
		return err
	}

	failures := &batchFailure{}
	group, gctx := errgroup.WithContext(ctx)
	for _, obj := range resp.Objects {
		obj := obj
		pointer, ok := byOid[obj.Oid]
		if !ok {
			continue
		}
		group.Go(func() error {
			if obj.Error != nil {
				failures.add(obj.Oid, obj.Error)
				return nil
			}
			action := obj.HonoredAction("download")
			if action == nil {
				failures.add(obj.Oid, &ErrBatchProtocol{Reason: "no download action for requested object"})
				return nil
			}
			if err := c.getObject(gctx, action, pointer); err != nil {
				failures.add(obj.Oid, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return errors.Wrap(err, "download batch")
	}
	return failures.errOrNil()
}

func (c *Client) getObject(ctx context.Context, action *Action, pointer *Pointer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, action.Href, nil)
	if err != nil {
		return errors.Wrap(err, "build download request")
	}
	for k, v := range action.Header {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ErrTransport{Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &ErrTransport{Reason: "download failed", Status: resp.StatusCode}
	}

	return c.cache.Insert(pointer.Oid, pointer.Size, resp.Body)
}

// DownloadOne is the single-object convenience form of Download. On
// success it returns the object's bytes read back out of the cache.
func (c *Client) DownloadOne(ctx context.Context, pointer *Pointer) ([]byte, error) {
	if err := c.Download(ctx, []*Pointer{pointer}); err != nil {
		return nil, err
	}
	r, _, err := c.cache.Open(pointer.Oid)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// UploadFile computes the pointer for the file at path by streaming it
// once through a HashingSink, then uploads it from a second pass reading
// the same file.
func (c *Client) UploadFile(ctx context.Context, path string) (*Pointer, error) {
	oid, size, f, err := hashFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pointer := NewPointer(oid, size)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek file for upload")
	}
	if err := c.UploadOne(ctx, pointer, f); err != nil {
		return nil, err
	}
	return pointer, nil
}

// DownloadToFile streams pointer's content into the cache, then hard
// copies it to dest.
func (c *Client) DownloadToFile(ctx context.Context, pointer *Pointer, dest string) error {
	if err := c.Download(ctx, []*Pointer{pointer}); err != nil {
		return err
	}
	return c.cache.Materialize(pointer.Oid, dest)
}

// hashFile opens path and streams it through a HashingSink to obtain its
// OID and size, returning the still-open file positioned at EOF so the
// caller can seek back to the start for a second pass.
func hashFile(path string) (oid string, size int64, f *os.File, err error) {
	f, err = os.Open(path)
	if err != nil {
		return "", 0, nil, &ErrCacheIO{Reason: err.Error()}
	}
	sink := NewHashingSink(io.Discard)
	if _, err := io.Copy(sink, f); err != nil {
		f.Close()
		return "", 0, nil, errors.Wrap(err, "hash file")
	}
	return sink.OID(), sink.Size(), f, nil
}
