// Package app 提供应用程序生命周期管理.
//
// 组件按注册顺序启动、逆序停止，服务器在全部组件启动后并发运行:
//
//	application := app.New(
//	    app.Name("inventory-service"),
//	    app.Logger(log),
//	    app.GracefulTimeout(10*time.Second),
//	    app.RegisterCloser("database", db, 10),
//	)
//	application.Attach(app.NewComponent("broker", b.Connect, b.Disconnect))
//	application.Use(httpSrv)
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/server"
)

// ErrRunning 应用正在运行.
var ErrRunning = errors.New("app: 应用正在运行")

// Application 应用程序，管理组件与服务器的生命周期.
type Application struct {
	opts       *options
	components []Component
	servers    []server.Server
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool

	cleanupOnce sync.Once
}

// New 创建应用程序.
func New(opts ...Option) *Application {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		panic("app: logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Application{
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Use 注册服务器.
func (a *Application) Use(servers ...server.Server) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, servers...)
	return a
}

// Attach 注册组件，按注册顺序启动.
func (a *Application) Attach(components ...Component) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.components = append(a.components, components...)
	return a
}

// Run 运行应用程序，阻塞直到收到信号、调用 Stop 或某个服务器异常退出.
//
// 组件启动失败时逆序停止已启动的组件并返回错误.
// 服务器异常退出时执行优雅关闭并返回该错误.
func (a *Application) Run() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrRunning
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if err := a.opts.hooks.run(a.ctx, BeforeStart); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
		defer cancel()
		a.runCleanups(shutdownCtx)
		return err
	}

	a.opts.logger.With(
		logger.String("name", a.opts.name),
		logger.String("version", a.opts.version),
	).Info("[App] 应用启动中")

	started, err := a.startComponents()
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
		defer cancel()
		a.stopComponents(shutdownCtx, started)
		a.runCleanups(shutdownCtx)
		return err
	}

	errCh := a.startServers()

	if err := a.opts.hooks.run(a.ctx, AfterStart); err != nil {
		a.opts.logger.With(logger.Err(err)).Error("[App] 启动后钩子执行失败")
	}

	runErr := a.wait(errCh)
	a.shutdown()
	return runErr
}

// Stop 主动停止应用程序.
func (a *Application) Stop() {
	a.cancel()
}

// Context 获取应用上下文.
func (a *Application) Context() context.Context {
	return a.ctx
}

// Name 获取应用名称.
func (a *Application) Name() string {
	return a.opts.name
}

// Version 获取应用版本.
func (a *Application) Version() string {
	return a.opts.version
}

func (a *Application) startComponents() ([]Component, error) {
	started := make([]Component, 0, len(a.components))
	for _, c := range a.components {
		if err := c.Start(a.ctx); err != nil {
			a.opts.logger.With(
				logger.String("component", c.Name()),
				logger.Err(err),
			).Error("[App] 组件启动失败")
			return started, fmt.Errorf("app: start %s: %w", c.Name(), err)
		}
		a.opts.logger.With(logger.String("component", c.Name())).Info("[App] 组件已启动")
		started = append(started, c)
	}
	return started, nil
}

// stopComponents 逆序停止组件.
func (a *Application) stopComponents(ctx context.Context, components []Component) {
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.Stop(ctx); err != nil {
			a.opts.logger.With(
				logger.String("component", c.Name()),
				logger.Err(err),
			).Error("[App] 组件停止失败")
			continue
		}
		a.opts.logger.With(logger.String("component", c.Name())).Info("[App] 组件已停止")
	}
}

func (a *Application) startServers() <-chan error {
	errCh := make(chan error, len(a.servers))
	if len(a.servers) == 0 {
		a.opts.logger.Warn("[App] 没有注册任何服务器")
		return errCh
	}

	for _, srv := range a.servers {
		go func(s server.Server) {
			a.opts.logger.With(
				logger.String("server", s.Name()),
				logger.String("addr", s.Addr()),
			).Info("[App] 启动服务器")
			if err := s.Start(a.ctx); err != nil {
				errCh <- fmt.Errorf("app: server %s: %w", s.Name(), err)
			}
		}(srv)
	}
	return errCh
}

func (a *Application) wait(errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, a.opts.signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.opts.logger.With(logger.String("signal", sig.String())).Info("[App] 收到信号")
	case <-a.ctx.Done():
		a.opts.logger.Info("[App] 上下文已取消")
	case err := <-errCh:
		a.opts.logger.With(logger.Err(err)).Error("[App] 服务器异常退出")
		return err
	}
	return nil
}

func (a *Application) shutdown() {
	a.opts.logger.With(
		logger.Duration("timeout", a.opts.gracefulTimeout),
	).Info("[App] 开始优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
	defer cancel()

	if err := a.opts.hooks.run(shutdownCtx, BeforeStop); err != nil {
		a.opts.logger.With(logger.Err(err)).Error("[App] 停止前钩子执行失败")
	}

	var wg sync.WaitGroup
	for _, srv := range a.servers {
		wg.Add(1)
		go func(s server.Server) {
			defer wg.Done()
			if err := s.Stop(shutdownCtx); err != nil {
				a.opts.logger.With(
					logger.String("server", s.Name()),
					logger.Err(err),
				).Error("[App] 服务器停止失败")
			}
		}(srv)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.opts.logger.Info("[App] 所有服务器已停止")
	case <-shutdownCtx.Done():
		a.opts.logger.Warn("[App] 关闭超时")
	}

	a.stopComponents(shutdownCtx, a.components)
	a.runCleanups(shutdownCtx)
	a.cancel()

	if err := a.opts.hooks.run(context.Background(), AfterStop); err != nil {
		a.opts.logger.With(logger.Err(err)).Error("[App] 停止后钩子执行失败")
	}

	a.opts.logger.Info("[App] 应用已关闭")
}
