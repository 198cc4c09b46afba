package app

import (
	"context"
	"sort"

	"github.com/Tsukikage7/inventory-service/logger"
)

// CleanupFunc 清理函数.
type CleanupFunc func(ctx context.Context) error

// Cleanup 清理任务，在组件停止之后执行.
type Cleanup struct {
	Name     string
	Fn       CleanupFunc
	Priority int // 数字越小越先执行
}

// RegisterCleanup 注册清理任务.
func RegisterCleanup(name string, fn CleanupFunc, priority int) Option {
	return func(o *options) {
		o.cleanups = append(o.cleanups, Cleanup{Name: name, Fn: fn, Priority: priority})
	}
}

// RegisterCloser 注册 io.Closer 作为清理任务，如数据库与 Redis 连接.
func RegisterCloser(name string, closer interface{ Close() error }, priority int) Option {
	return RegisterCleanup(name, func(context.Context) error {
		return closer.Close()
	}, priority)
}

// runCleanups 按优先级执行全部清理任务，单个失败只记录日志.
//
// 同一应用可能在启动失败与正常关闭两条路径上调用，已执行过的任务不会重复执行.
func (a *Application) runCleanups(ctx context.Context) {
	a.cleanupOnce.Do(func() {
		cleanups := append([]Cleanup(nil), a.opts.cleanups...)
		sort.SliceStable(cleanups, func(i, j int) bool {
			return cleanups[i].Priority < cleanups[j].Priority
		})

		for _, c := range cleanups {
			if err := c.Fn(ctx); err != nil {
				a.opts.logger.With(
					logger.String("cleanup", c.Name),
					logger.Err(err),
				).Error("[App] 清理失败")
				continue
			}
			a.opts.logger.With(logger.String("cleanup", c.Name)).Debug("[App] 清理完成")
		}
	})
}
