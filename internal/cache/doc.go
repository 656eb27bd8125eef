// Package cache 定义按版本隔离的离线缓存存储。每个 VersionTag 对应一份独立的
// Store（key → Snapshot），Store 内条目只会被整体替换，不会被部分写入。
// 具体的持久化实现（fs/sqlite）位于子包中，并在 init() 中通过 RegisterDriver
// 注册到本包的驱动注册表，配置层据此校验 StoreDriver 字段。
package cache
