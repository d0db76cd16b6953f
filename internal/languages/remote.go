package languages

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/discord-presence/internal/atomicfile"
)

// maxTableSize bounds the downloaded table.
const maxTableSize = 1 << 20

// httpClient is a lazily-initialized retryablehttp client shared across all
// table refreshes. Initialized once via httpClientOnce.
var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

// getHTTPClient returns the shared retryable HTTP client, initializing it on
// first call.
func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.RetryWaitMin = 200 * time.Millisecond
		httpClient.RetryWaitMax = 2 * time.Second
		httpClient.HTTPClient.Timeout = 10 * time.Second
		httpClient.Logger = nil // suppress retryablehttp's default logging
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Refresh loads the language table: remote -> cache -> built-in.
// A successful download is written to cachePath. Remote and cache tables are
// layered over the built-in one so a partial remote table never loses
// entries. Refresh always returns a usable table.
func Refresh(ctx context.Context, url, cachePath string) *Table {
	base := Builtin()
	if url != "" {
		remote, err := fetchRemote(ctx, getHTTPClient(), url)
		if err == nil {
			cacheWrite(cachePath, remote)
			slog.Debug("language table refreshed", "url", url, "entries", remote.Len())
			return base.Merge(remote)
		}
		slog.Warn("language table refresh failed", "url", url, "error", err)
	}
	if cached, err := cacheRead(cachePath); err == nil {
		slog.Debug("using cached language table", "entries", cached.Len())
		return base.Merge(cached)
	}
	return base
}

// Cached loads the built-in table layered with the cache file when present,
// without touching the network.
func Cached(cachePath string) *Table {
	if cached, err := cacheRead(cachePath); err == nil {
		return Builtin().Merge(cached)
	}
	return Builtin()
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

// fetchRemote downloads a table. The response body is limited to 1 MiB.
func fetchRemote(ctx context.Context, client *retryablehttp.Client, url string) (*Table, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTableSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(body) > maxTableSize {
		return nil, fmt.Errorf("GET %s: response larger than %d bytes", url, maxTableSize)
	}
	return Parse(body)
}

// cacheWrite persists a table with [atomicfile.WriteJSON] so a later
// [Refresh] can fall back to it when offline.
func cacheWrite(path string, t *Table) {
	if path == "" {
		return
	}
	if err := atomicfile.WriteJSON(path, t, 0o644); err != nil {
		slog.Debug("failed to write language cache", "error", err)
	}
}

// cacheRead loads a previously cached table.
func cacheRead(path string) (*Table, error) {
	if path == "" {
		return nil, fmt.Errorf("no cache path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading language cache %s: %w", path, err)
	}
	t, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parsing language cache: %w", err)
	}
	return t, nil
}
