// Package xconf 提供统一的配置加载和解析功能，基于 koanf 实现。
//
// # 设计理念
//
// xconf 定位为最小化配置加载器，负责文件/字节数据的加载、环境变量叠加、
// 反序列化和热重载。不负责配置治理（必选字段校验、默认值注入），
// 这些能力由使用方在自己的配置结构体上实现：
// 先填好默认值，再 Unmarshal 覆盖配置中出现的字段，最后 Validate。
//
// # 支持的格式
//
//   - YAML（默认，推荐）：.yaml, .yml
//   - JSON：.json
//
// # 加载顺序
//
// 文件 → 环境变量（WithEnvPrefix），后者覆盖前者。Reload 按同样顺序重建。
//
// # 并发安全
//
//   - Reload() 通过互斥锁序列化，解析成功后用 atomic.Pointer 原子替换 koanf 实例，
//     解析失败时保留旧配置
//   - Client() 无锁返回当前实例
//
// Client() 返回的指针在 Reload() 后仍然有效，但指向旧配置（快照语义）。
// 推荐每次需要时调用 Client()，不要长期缓存返回的指针。
//
// # 配置监视
//
// Watch 基于 fsnotify 监视配置文件，内置防抖，支持 vim/emacs 原子写入。
// 回调在 Run 的 goroutine 中执行，Run 返回后不会再有回调。
// 从 bytes 创建的 Config 不支持监视。
package xconf
