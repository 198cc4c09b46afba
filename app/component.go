package app

import "context"

// Component 需要在服务器之前就绪的组件，Start 不阻塞.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type funcComponent struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

// NewComponent 由启动与停止函数构建组件，任一函数可为 nil.
//
//	app.NewComponent("broker", b.Connect, b.Disconnect)
func NewComponent(name string, start, stop func(ctx context.Context) error) Component {
	return &funcComponent{name: name, start: start, stop: stop}
}

func (c *funcComponent) Name() string { return c.name }

func (c *funcComponent) Start(ctx context.Context) error {
	if c.start == nil {
		return nil
	}
	return c.start(ctx)
}

func (c *funcComponent) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	return c.stop(ctx)
}
