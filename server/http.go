package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/Tsukikage7/inventory-service/logger"
)

// HTTP HTTP 服务器.
type HTTP struct {
	opts    *httpOptions
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

var _ Server = (*HTTP)(nil)

// NewHTTP 创建 HTTP 服务器.
//
// 示例:
//
//	r := chi.NewRouter()
//	r.Get("/healthz", health.LivenessHandler(h))
//
//	srv := server.NewHTTP(r,
//	    server.WithHTTPAddr(":3003"),
//	    server.WithHTTPLogger(log),
//	)
func NewHTTP(handler http.Handler, opts ...HTTPOption) *HTTP {
	o := defaultHTTPOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &HTTP{
		opts:    o,
		handler: handler,
	}
}

// Start 监听并处理请求，阻塞直到 Stop 被调用或监听失败.
//
// ctx 被取消时会以 ctx 之外的新上下文执行优雅关闭.
func (s *HTTP) Start(ctx context.Context) error {
	if s.handler == nil {
		return ErrNilHandler
	}
	if s.opts.addr == "" {
		return ErrAddrEmpty
	}

	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return ErrServerRunning
	}
	ln, err := net.Listen("tcp", s.opts.addr)
	if err != nil {
		s.mu.Unlock()
		return &ListenError{Server: s.opts.name, Addr: s.opts.addr, Err: err}
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.opts.readTimeout,
		ReadHeaderTimeout: s.opts.readHeaderTimeout,
		WriteTimeout:      s.opts.writeTimeout,
		IdleTimeout:       s.opts.idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	if log := s.logger(); log != nil {
		log.With(
			logger.String("server", s.opts.name),
			logger.String("addr", ln.Addr().String()),
		).Info("[HTTP] 服务器已启动")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.writeTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	}
}

// Stop 优雅关闭 HTTP 服务器，等待进行中的请求完成或 ctx 到期.
func (s *HTTP) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if log := s.logger(); log != nil {
		log.With(logger.String("server", s.opts.name)).Info("[HTTP] 服务器停止中")
	}
	return srv.Shutdown(ctx)
}

// Name 返回服务器名称.
func (s *HTTP) Name() string {
	return s.opts.name
}

// Addr 返回服务器地址，监听后返回实际绑定的地址.
func (s *HTTP) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.addr
}

// Handler 返回 HTTP Handler.
func (s *HTTP) Handler() http.Handler {
	return s.handler
}

func (s *HTTP) logger() logger.Logger {
	return s.opts.logger
}
