package config

import "strings"

// Options 配置加载选项.
type Options struct {
	// EnvPrefix 环境变量前缀，例如 "INVENTORY" 会将 INVENTORY_BROKER_CLIENT_ID 映射到 broker.client_id
	EnvPrefix string

	// EnvKeyReplacer 环境变量键替换器，默认将 . 替换为 _
	EnvKeyReplacer *strings.Replacer

	// AutomaticEnv 是否自动绑定环境变量
	AutomaticEnv bool

	// AllowEmptyEnv 是否允许空环境变量值覆盖配置
	AllowEmptyEnv bool

	// ConfigType 显式指定配置文件类型（yaml, json, toml 等）
	ConfigType string

	// Defaults 默认配置值
	Defaults map[string]any

	// EnvBindings 额外绑定的环境变量，键为配置路径，值为按优先级排列的变量名
	EnvBindings map[string][]string
}

// DefaultOptions 返回默认选项.
func DefaultOptions() *Options {
	return &Options{
		EnvKeyReplacer: strings.NewReplacer(".", "_"),
		AutomaticEnv:   true,
	}
}

// Option 配置选项函数.
type Option func(*Options)

// WithEnvPrefix 设置环境变量前缀.
func WithEnvPrefix(prefix string) Option {
	return func(o *Options) {
		o.EnvPrefix = prefix
	}
}

// WithEnvKeyReplacer 设置环境变量键替换器.
func WithEnvKeyReplacer(r *strings.Replacer) Option {
	return func(o *Options) {
		o.EnvKeyReplacer = r
	}
}

// WithAllowEmptyEnv 允许空环境变量覆盖配置.
func WithAllowEmptyEnv() Option {
	return func(o *Options) {
		o.AllowEmptyEnv = true
	}
}

// WithDefaults 设置默认值，与已有默认值合并.
func WithDefaults(defaults map[string]any) Option {
	return func(o *Options) {
		if o.Defaults == nil {
			o.Defaults = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			o.Defaults[k] = v
		}
	}
}

// WithEnvBinding 为配置路径绑定额外的环境变量名.
//
//	config.WithEnvBinding("broker.brokers", "KAFKA_BROKERS")
func WithEnvBinding(key string, envNames ...string) Option {
	return func(o *Options) {
		if o.EnvBindings == nil {
			o.EnvBindings = make(map[string][]string)
		}
		o.EnvBindings[key] = append(o.EnvBindings[key], envNames...)
	}
}

// WithConfigType 显式指定配置文件类型.
func WithConfigType(configType string) Option {
	return func(o *Options) {
		o.ConfigType = configType
	}
}
