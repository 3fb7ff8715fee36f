package xadmit

import "errors"

var (
	// ErrNilContext 表示传入了 nil context
	ErrNilContext = errors.New("xadmit: nil context")

	// ErrNilFunc 表示服务商调用函数为 nil
	ErrNilFunc = errors.New("xadmit: nil function")

	// ErrNilController 表示 Controller 为 nil
	ErrNilController = errors.New("xadmit: nil controller")

	// ErrNilGate 表示未提供门控
	ErrNilGate = errors.New("xadmit: nil gate")

	// ErrNilLimiter 表示未提供限流器
	ErrNilLimiter = errors.New("xadmit: nil limiter")

	// ErrInvalidConfig 表示配置校验失败，具体字段见包装的错误信息
	ErrInvalidConfig = errors.New("xadmit: invalid config")
)
