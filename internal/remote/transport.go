package remote

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type bypassCacheKey struct{}

// WithoutCache marks ctx so reads skip the cache lookup. The fresh response is
// still written back to the cache.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassCacheKey{}, true)
}

func cacheBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassCacheKey{}).(bool)
	return v
}

// cachingTransport serves successful GET responses from a Cache. It sits below the
// auth transport so the Authorization header takes part in the cache key.
type cachingTransport struct {
	cache  *Cache
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}

	scope := ScopeFor(repoFromPath(req.URL.Path))
	key := CacheKey(req.URL.String(), req.Header.Get("Authorization"))

	if !cacheBypassed(req.Context()) {
		if data, ok := t.cache.Get(scope, key); ok {
			t.logger.Debug("cache hit", "url", req.URL.Path)
			return cachedResponse(req, data), nil
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	if err := t.cache.Put(scope, key, data); err != nil {
		t.logger.Warn("cache write failed", "url", req.URL.Path, "error", err)
	}
	return resp, nil
}

func cachedResponse(req *http.Request, data []byte) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json; charset=utf-8")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
		Request:       req,
	}
}

// repoFromPath extracts owner and repo from an API path like
// "/api/v3/repos/{owner}/{repo}/contents/...".
func repoFromPath(path string) (owner, repo string) {
	_, rest, ok := strings.Cut(path, "/repos/")
	if !ok {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
