package recovery

import (
	"net/http"

	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/response"
)

// HTTPMiddleware 返回 HTTP panic 恢复中间件.
//
// 捕获 panic 后记录堆栈，返回统一格式的 500 响应.
func HTTPMiddleware(opts ...Option) func(http.Handler) http.Handler {
	o := applyOptions(opts)
	if o.Logger == nil {
		panic("recovery: logger is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				// 保持 http.ErrAbortHandler 的语义
				if p == http.ErrAbortHandler {
					panic(p)
				}

				perr := &PanicError{Value: p, Stack: captureStack(o.StackSize)}
				o.Logger.WithContext(r.Context()).With(
					logger.Any("panic", p),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(perr.Stack)),
				).Error("[Recovery] HTTP 处理器 panic")

				if o.Collector != nil {
					o.Collector.RecordPanic("http", r.Method+" "+r.URL.Path)
				}
				_ = response.WriteError(w, response.Wrap(response.CodeInternal, perr))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
