package xgate

import "errors"

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrInvalidCapacity 容量小于 1。
	// New 和 SetCapacity 同步拒绝，不做截断。
	ErrInvalidCapacity = errors.New("xgate: invalid capacity")

	// ErrNilContext 传入 nil context。
	ErrNilContext = errors.New("xgate: nil context")
)
