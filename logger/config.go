package logger

import (
	"fmt"
	"strings"
	"time"
)

// Config 日志配置.
//
// ServiceName、Version、Environment 作为基础字段写入每条日志.
type Config struct {
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Version     string `json:"version" yaml:"version" mapstructure:"version"`
	Environment string `json:"environment" yaml:"environment" mapstructure:"environment"`
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	Format      string `json:"format" yaml:"format" mapstructure:"format"`

	// Output 输出目标: console, file, both.
	Output string `json:"output" yaml:"output" mapstructure:"output"`
	// FilePath 日志文件路径，Output 为 file 或 both 时必填.
	FilePath string `json:"file_path" yaml:"file_path" mapstructure:"file_path"`

	EnableCaller     bool `json:"enable_caller" yaml:"enable_caller" mapstructure:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace" yaml:"enable_stacktrace" mapstructure:"enable_stacktrace"`

	// TimeLayout 时间格式，默认 "2006-01-02 15:04:05.000".
	TimeLayout string `json:"time_layout" yaml:"time_layout" mapstructure:"time_layout"`

	Sampling SamplingConfig `json:"sampling" yaml:"sampling" mapstructure:"sampling"`
}

// SamplingConfig 日志采样配置.
//
// 每个 Tick 内同一级别同一消息的前 Initial 条全部输出，之后每 Thereafter 条输出一条.
// 用于消费失败重试等可能短时间内大量重复的日志.
type SamplingConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Tick       time.Duration `json:"tick" yaml:"tick" mapstructure:"tick"`
	Initial    int           `json:"initial" yaml:"initial" mapstructure:"initial"`
	Thereafter int           `json:"thereafter" yaml:"thereafter" mapstructure:"thereafter"`
}

// ConfigError 配置错误.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("logger config error [%s]: %s", e.Field, e.Message)
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigError{Field: "config", Message: "config cannot be nil"}
	}
	if c.Level != "" && !isValidLevel(c.Level) {
		return &ConfigError{Field: "level", Message: "invalid log level: " + c.Level}
	}
	if c.Format != "" && !isValidFormat(c.Format) {
		return &ConfigError{Field: "format", Message: "invalid format: " + c.Format}
	}
	if c.Output != "" && !isValidOutput(c.Output) {
		return &ConfigError{Field: "output", Message: "invalid output: " + c.Output}
	}
	if c.needsFileOutput() && c.FilePath == "" {
		return &ConfigError{Field: "file_path", Message: "file_path is required when output is file or both"}
	}
	if c.Sampling.Initial < 0 || c.Sampling.Thereafter < 0 {
		return &ConfigError{Field: "sampling", Message: "initial and thereafter must not be negative"}
	}
	return nil
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = LevelInfo
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Output == "" {
		c.Output = OutputConsole
	}
	if c.ServiceName == "" {
		c.ServiceName = "service"
	}
	if c.TimeLayout == "" {
		c.TimeLayout = "2006-01-02 15:04:05.000"
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			c.Sampling.Tick = time.Second
		}
		if c.Sampling.Initial == 0 {
			c.Sampling.Initial = 100
		}
		if c.Sampling.Thereafter == 0 {
			c.Sampling.Thereafter = 100
		}
	}
}

// baseFields 返回写入每条日志的基础字段.
func (c *Config) baseFields() []Field {
	fields := []Field{String("service", c.ServiceName)}
	if c.Version != "" {
		fields = append(fields, String("version", c.Version))
	}
	if c.Environment != "" {
		fields = append(fields, String("env", c.Environment))
	}
	return fields
}

func (c *Config) needsFileOutput() bool {
	output := strings.ToLower(c.Output)
	return output == OutputFile || output == OutputBoth
}

func (c *Config) needsConsoleOutput() bool {
	output := strings.ToLower(c.Output)
	return output == OutputConsole || output == OutputBoth
}

func isValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case LevelDebug, LevelInfo, LevelWarn, "warning", LevelError, LevelFatal:
		return true
	}
	return false
}

func isValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatJSON, FormatConsole:
		return true
	}
	return false
}

func isValidOutput(output string) bool {
	switch strings.ToLower(output) {
	case OutputConsole, OutputFile, OutputBoth:
		return true
	}
	return false
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	config := &Config{}
	config.ApplyDefaults()
	return config
}

// NewDevConfig 返回开发环境配置.
func NewDevConfig() *Config {
	return &Config{
		Environment:  "development",
		Level:        LevelDebug,
		Format:       FormatConsole,
		Output:       OutputConsole,
		EnableCaller: true,
	}
}
