package xconf

import "strings"

// Options 定义配置加载选项。
type Options struct {
	// Delim 配置键的分隔符，默认为 "."。
	Delim string

	// Tag 结构体标签名，用于 Unmarshal，默认为 "koanf"。
	Tag string

	// EnvPrefix 非空时，在文件之上叠加以该前缀开头的环境变量。
	EnvPrefix string
}

// Option 定义配置选项函数类型。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Delim: ".",
		Tag:   "koanf",
	}
}

// WithDelim 设置配置键分隔符。
func WithDelim(delim string) Option {
	return func(o *Options) {
		if delim != "" {
			o.Delim = delim
		}
	}
}

// WithTag 设置结构体标签名。
func WithTag(tag string) Option {
	return func(o *Options) {
		if tag != "" {
			o.Tag = tag
		}
	}
}

// WithEnvPrefix 叠加环境变量，优先级高于文件。
//
// 变量名去掉前缀后转小写作为键，双下划线表示层级：
//
//	XADMIT_MAX_RPM=300           → max_rpm
//	XADMIT_REDIS__ADDR=host:6379 → redis.addr
//
// prefix 会自动补全结尾的下划线。
func WithEnvPrefix(prefix string) Option {
	return func(o *Options) {
		if prefix != "" && !strings.HasSuffix(prefix, "_") {
			prefix += "_"
		}
		o.EnvPrefix = prefix
	}
}
