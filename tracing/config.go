// Package tracing 提供基于 OpenTelemetry 的链路追踪初始化.
package tracing

import "time"

// Config 链路追踪配置.
type Config struct {
	// Enabled 是否启用链路追踪
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// OTLP OTLP配置
	OTLP OTLPConfig `json:"otlp" yaml:"otlp" mapstructure:"otlp"`
	// SamplingRate 采样率 (0.0-1.0)
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" mapstructure:"sampling_rate"`
}

// OTLPConfig OTLP/HTTP 导出配置.
type OTLPConfig struct {
	// Endpoint Collector 地址，可带 http:// 或 https:// 前缀
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	// Insecure 使用 HTTP 而不是 HTTPS
	Insecure bool `json:"insecure" yaml:"insecure" mapstructure:"insecure"`
	// Timeout 单次导出超时
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	// Headers 请求头[可选]
	Headers map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`
}

// DefaultConfig 返回默认配置，默认关闭.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		SamplingRate: 1.0,
		OTLP: OTLPConfig{
			Endpoint: "localhost:4318",
			Insecure: true,
			Timeout:  10 * time.Second,
		},
	}
}
