package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPMiddleware 返回 HTTP 指标采集中间件.
//
// route 标签优先使用 chi 的路由模式（如 /inventory/{productId}），
// 避免路径参数导致标签基数膨胀.
//
//	r := chi.NewRouter()
//	r.Use(metrics.HTTPMiddleware(collector))
func HTTPMiddleware(collector Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			collector.RecordHTTPRequest(
				r.Method,
				routePattern(r),
				strconv.Itoa(rw.statusCode),
				time.Since(start),
				float64(r.ContentLength),
				float64(rw.size),
			)
		})
	}
}

// routePattern 返回请求匹配的路由模式，未经 chi 路由时退回原始路径.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码和响应大小.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}
