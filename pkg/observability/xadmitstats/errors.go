package xadmitstats

import "errors"

// 预定义错误
var (
	// ErrNilSource 传入 nil 状态来源
	ErrNilSource = errors.New("xadmitstats: nil source")

	// ErrNilRegistry 传入 nil registry
	ErrNilRegistry = errors.New("xadmitstats: nil registry")
)
