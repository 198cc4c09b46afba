// Package server 提供 HTTP 服务器.
//
// 示例：
//
//	srv := server.NewHTTP(router,
//	    server.WithHTTPAddr(":3003"),
//	    server.WithHTTPLogger(log),
//	)
//	go srv.Start(ctx)
//	defer srv.Stop(context.Background())
//
// 生命周期由 app.Application 统一管理.
package server

import "context"

// Server 服务器接口.
type Server interface {
	// Start 启动服务器（阻塞）.
	Start(ctx context.Context) error

	// Stop 停止服务器.
	Stop(ctx context.Context) error

	// Name 服务器名称.
	Name() string

	// Addr 服务器地址.
	Addr() string
}
