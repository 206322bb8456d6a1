package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/texdesk/internal/docstore"
)

// ErrRemoteNotFound is returned when the server has no such document.
var ErrRemoteNotFound = errors.New("preview: document not found on server")

// maxRemoteBytes bounds a fetched working copy.
const maxRemoteBytes = 32 << 20

// RemoteFetcher polls a texdesk server for a document's working copy.
// It sends the last seen marker as If-None-Match and reuses the cached
// text on 304.
type RemoteFetcher struct {
	baseURL    string
	apiKey     string
	id         string
	httpClient *http.Client

	mu      sync.Mutex
	last    Source
	hasLast bool
}

func NewRemoteFetcher(baseURL, apiKey, id string) *RemoteFetcher {
	return &RemoteFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		id:      id,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *RemoteFetcher) Fetch(ctx context.Context) (Source, error) {
	u := c.baseURL + "/api/files/" + url.PathEscape(c.id) + "?filename=" + url.QueryEscape(docstore.WorkingCopyName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Source{}, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	c.mu.Lock()
	last, hasLast := c.last, c.hasLast
	c.mu.Unlock()
	if hasLast && last.Marker != "" {
		req.Header.Set("If-None-Match", last.Marker)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Source{}, fmt.Errorf("fetch working copy: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if hasLast {
			return last, nil
		}
		return Source{}, fmt.Errorf("fetch working copy: unexpected 304")
	case http.StatusNotFound:
		return Source{}, ErrRemoteNotFound
	case http.StatusOK:
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Source{}, fmt.Errorf("fetch working copy %s: status %d: %s", c.id, resp.StatusCode, string(respBody))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes))
	if err != nil {
		return Source{}, fmt.Errorf("read working copy: %w", err)
	}
	marker := resp.Header.Get("ETag")
	if marker == "" {
		marker = resp.Header.Get("Last-Modified")
	}
	src := Source{Text: string(body), Marker: marker}
	c.mu.Lock()
	c.last, c.hasLast = src, true
	c.mu.Unlock()
	return src, nil
}

// Close releases idle connections.
func (c *RemoteFetcher) Close() {
	c.httpClient.CloseIdleConnections()
}
