package health

import "context"

// Pinger 实现了 Ping 方法的依赖.
//
// *database.DB 与 cache.Cache 均满足该接口.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker 通用 Ping 检查器.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker 创建 Ping 检查器.
func NewPingChecker(name string, pinger Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: pinger}
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	return resultOf(c.pinger.Ping(ctx))
}

// FuncChecker 函数检查器.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncChecker 创建函数检查器，fn 返回 nil 表示健康.
func NewFuncChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string {
	return c.name
}

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	return resultOf(c.fn(ctx))
}

func resultOf(err error) CheckResult {
	if err != nil {
		return CheckResult{Status: StatusDown, Message: err.Error()}
	}
	return CheckResult{Status: StatusUp}
}
