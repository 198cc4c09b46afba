package app

import (
	"context"
	"fmt"
)

// Phase 生命周期阶段.
type Phase int

// 生命周期阶段.
const (
	BeforeStart Phase = iota
	AfterStart
	BeforeStop
	AfterStop
)

func (p Phase) String() string {
	switch p {
	case BeforeStart:
		return "beforeStart"
	case AfterStart:
		return "afterStart"
	case BeforeStop:
		return "beforeStop"
	case AfterStop:
		return "afterStop"
	default:
		return "unknown"
	}
}

// Hook 生命周期钩子函数.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Hooks 按阶段登记的钩子，同一阶段按添加顺序执行.
type Hooks struct {
	phases map[Phase][]namedHook
}

// NewHooks 创建钩子集合.
func NewHooks() *Hooks {
	return &Hooks{phases: make(map[Phase][]namedHook)}
}

// On 在指定阶段添加钩子.
func (h *Hooks) On(phase Phase, name string, hook Hook) *Hooks {
	if hook != nil {
		h.phases[phase] = append(h.phases[phase], namedHook{name: name, fn: hook})
	}
	return h
}

// run 执行某一阶段的钩子，遇到第一个错误即返回.
func (h *Hooks) run(ctx context.Context, phase Phase) error {
	if h == nil {
		return nil
	}
	for _, hook := range h.phases[phase] {
		if err := hook.fn(ctx); err != nil {
			return fmt.Errorf("app: %s hook %s: %w", phase, hook.name, err)
		}
	}
	return nil
}
