// Package httputil provides response-side HTTP middleware shared by the
// service's API handlers: content-negotiated compression for large trace
// bodies, built on top of pkg/compression's Compressor implementations
// (gzip and zstd) per SPEC_FULL.md's DOMAIN STACK.
package httputil

import (
	"bytes"
	"net/http"
	"strings"

	"pytrace/pkg/compression"
)

var (
	gzipCompressor = &compression.GzipCompressor{}
	zstdCompressor = &compression.ZstdCompressor{}
)

// CompressionMiddleware buffers the handler's response and compresses it
// with zstd or gzip according to the request's Accept-Encoding header,
// preferring zstd for larger bodies the way pkg/compression's own
// selectBestCompressor does. Bodies under the chosen compressor's MinSize
// are left uncompressed.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := &bytes.Buffer{}
		rec := &responseRecorder{ResponseWriter: w, body: buf, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		body := buf.Bytes()
		compressor, encoding := pick(r.Header.Get("Accept-Encoding"), len(body))
		if compressor == nil {
			w.WriteHeader(rec.status)
			_, _ = w.Write(body)
			return
		}

		compressed, err := compressor.Compress(body)
		if err != nil || len(compressed) >= len(body) {
			w.WriteHeader(rec.status)
			_, _ = w.Write(body)
			return
		}

		w.Header().Set("Content-Encoding", encoding)
		w.Header().Set("Vary", "Accept-Encoding")
		w.WriteHeader(rec.status)
		_, _ = w.Write(compressed)
	})
}

func pick(acceptEncoding string, size int) (compression.Compressor, string) {
	accepts := func(name string) bool { return strings.Contains(acceptEncoding, name) }
	if size >= zstdCompressor.MinSize() && accepts("zstd") {
		return zstdCompressor, "zstd"
	}
	if size >= gzipCompressor.MinSize() && accepts("gzip") {
		return gzipCompressor, "gzip"
	}
	return nil, ""
}

// responseRecorder buffers a handler's body so CompressionMiddleware can
// decide, after the fact, whether compressing it is worthwhile.
type responseRecorder struct {
	http.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

func (r *responseRecorder) Write(b []byte) (int, error) { return r.body.Write(b) }
