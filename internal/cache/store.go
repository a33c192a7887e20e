package cache

import (
	"errors"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<root>/respcache/cache.metadata   # journal，整文件 JSON 数组
//	<root>/respcache/<uuid>.cache     # 每个条目一个正文 blob
//
// 所有方法都不返回 I/O 错误：失败会被记录日志，并表现为“没有效果”
// （Get → miss，Put → 丢弃，Remove → no-op）。
type Store interface {
	// Get 先清理过期条目，再读取 key 对应的正文。blob 读取失败时条目会被移除。
	Get(key string) (*Cached, bool)

	// Put 总是先移除旧条目；expiresAt 已过去时只做移除，否则原子写入新 blob 并持久化 journal。
	Put(key string, body []byte, statusCode int, expiresAt *time.Time)

	// Remove 删除单个条目（blob 删除失败仅记录日志）。
	Remove(key string)

	// RemoveAll 递归删除缓存目录后重新创建，并清空内存索引。
	RemoveAll()

	// PurgeExpired 移除所有过期条目并返回数量，最后只写一次 journal。
	PurgeExpired() int

	// Entries 返回按 key 排序的条目快照，用于诊断接口。
	Entries() []Entry

	// Close 停止串行 worker 并释放目录占用。
	Close() error
}

// Cached 是一次缓存命中的结果。
type Cached struct {
	Body       []byte
	StatusCode int
	CachedAt   time.Time
	ExpiresAt  *time.Time
}

// ErrDirectoryInUse 表示同一物理目录已被另一个 Store 实例占用。
var ErrDirectoryInUse = errors.New("cache directory already owned by another store")

// ErrStoreClosed 表示 Store 已关闭。
var ErrStoreClosed = errors.New("cache store closed")
