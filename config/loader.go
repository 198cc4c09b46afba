// Package config 提供配置加载和管理功能.
//
// 通用加载器基于 viper，支持 yaml、json、toml 格式与环境变量覆盖.
// 库存服务的完整配置见 Config，通过 LoadService 加载.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Validatable 可验证的配置接口.
type Validatable interface {
	Validate() error
}

// Load 从文件加载配置.
//
// 配置类型根据文件扩展名识别，可通过 WithConfigType 显式指定.
// 如果配置类型实现了 Validatable 接口，会自动进行验证.
func Load[T any](configPath string, opts ...Option) (*T, error) {
	options := buildOptions(opts)

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, configPath)
	}

	configType := options.ConfigType
	if configType == "" {
		configType = configTypeOf(configPath)
	}
	if configType == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType(configType)
	if err := applyOptions(v, options); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}
	return unmarshalAndValidate[T](v)
}

// MustLoad 加载配置，失败时 panic.
func MustLoad[T any](configPath string, opts ...Option) *T {
	config, err := Load[T](configPath, opts...)
	if err != nil {
		panic(err)
	}
	return config
}

// LoadFromBytes 从字节数组加载配置.
func LoadFromBytes[T any](data []byte, configType string, opts ...Option) (*T, error) {
	options := buildOptions(opts)

	v := viper.New()
	v.SetConfigType(configType)
	if err := applyOptions(v, options); err != nil {
		return nil, err
	}

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}
	return unmarshalAndValidate[T](v)
}

// LoadFromEnv 仅从默认值与环境变量加载配置.
func LoadFromEnv[T any](opts ...Option) (*T, error) {
	v := viper.New()
	if err := applyOptions(v, buildOptions(opts)); err != nil {
		return nil, err
	}
	return unmarshalAndValidate[T](v)
}

// LoadWithSearch 在多个目录中搜索配置文件.
func LoadWithSearch[T any](configName string, searchPaths []string, opts ...Option) (*T, error) {
	options := buildOptions(opts)

	v := viper.New()
	v.SetConfigName(configName)
	for _, path := range searchPaths {
		v.AddConfigPath(path)
	}
	if err := applyOptions(v, options); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, configName)
		}
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}
	return unmarshalAndValidate[T](v)
}

func buildOptions(opts []Option) *Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyOptions 应用通用选项到 viper 实例.
func applyOptions(v *viper.Viper, options *Options) error {
	for key, value := range options.Defaults {
		v.SetDefault(key, value)
	}

	if options.EnvPrefix != "" {
		v.SetEnvPrefix(options.EnvPrefix)
	}
	if options.EnvKeyReplacer != nil {
		v.SetEnvKeyReplacer(options.EnvKeyReplacer)
	}
	if options.AutomaticEnv {
		v.AutomaticEnv()
	}
	v.AllowEmptyEnv(options.AllowEmptyEnv)

	for key, envNames := range options.EnvBindings {
		// 显式列出变量名时不再追加前缀，需同时保留带前缀的名称
		names := envNames
		if options.EnvPrefix != "" {
			names = append([]string{envName(options, key)}, envNames...)
		}
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("%w: bind env %s: %w", ErrReadConfig, key, err)
		}
	}
	return nil
}

func envName(options *Options, key string) string {
	name := key
	if options.EnvKeyReplacer != nil {
		name = options.EnvKeyReplacer.Replace(key)
	}
	return strings.ToUpper(options.EnvPrefix + "_" + name)
}

// unmarshalAndValidate 解析配置并验证.
func unmarshalAndValidate[T any](v *viper.Viper) (*T, error) {
	config := new(T)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshal, err)
	}

	if validator, ok := any(config).(Validatable); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return config, nil
}

// configTypeOf 根据文件扩展名识别 viper 配置类型，无法识别时返回空串.
func configTypeOf(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	case ".env":
		return "env"
	default:
		return ""
	}
}
