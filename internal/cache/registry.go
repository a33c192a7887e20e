package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Behavior 区分两种存储生命周期，仅存储根目录不同。
type Behavior string

const (
	// BehaviorPurgeable 的根目录允许被操作系统在空间不足时回收。
	BehaviorPurgeable Behavior = "purgeable"
	// BehaviorPersistent 只会因手动清理或过期被回收。
	BehaviorPersistent Behavior = "persistent"
)

// ParseBehavior 将配置或查询参数中的字符串标准化为 Behavior。
func ParseBehavior(raw string) (Behavior, error) {
	switch Behavior(strings.ToLower(strings.TrimSpace(raw))) {
	case BehaviorPurgeable:
		return BehaviorPurgeable, nil
	case BehaviorPersistent:
		return BehaviorPersistent, nil
	default:
		return "", fmt.Errorf("unknown store behavior: %q", raw)
	}
}

// RegistryOptions 给出每种生命周期的存储根目录，空值表示不启用该 Store。
type RegistryOptions struct {
	PurgeableRoot  string
	PersistentRoot string
	Store          Options
}

// Registry 在启动阶段构建一次，替代进程级全局缓存单例，并以引用方式传给协作者。
type Registry struct {
	stores map[Behavior]Store
	roots  map[Behavior]string
}

// NewRegistry 为每个配置了根目录的生命周期创建 Store；任一失败时关闭已创建的实例。
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	r := &Registry{
		stores: make(map[Behavior]Store, 2),
		roots:  make(map[Behavior]string, 2),
	}

	roots := []struct {
		behavior Behavior
		root     string
	}{
		{BehaviorPurgeable, opts.PurgeableRoot},
		{BehaviorPersistent, opts.PersistentRoot},
	}
	for _, item := range roots {
		if item.root == "" {
			continue
		}
		store, err := NewStore(item.root, opts.Store)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("%s store: %w", item.behavior, err)
		}
		r.stores[item.behavior] = store
		r.roots[item.behavior] = item.root
	}

	if len(r.stores) == 0 {
		return nil, errors.New("at least one store root required")
	}
	return r, nil
}

// Store 返回对应生命周期的 Store。
func (r *Registry) Store(b Behavior) (Store, bool) {
	if r == nil {
		return nil, false
	}
	store, ok := r.stores[b]
	return store, ok
}

// Root 返回对应生命周期的存储根目录。
func (r *Registry) Root(b Behavior) string {
	if r == nil {
		return ""
	}
	return r.roots[b]
}

// Behaviors 返回已启用的生命周期，按名称排序。
func (r *Registry) Behaviors() []Behavior {
	if r == nil {
		return nil
	}
	out := make([]Behavior, 0, len(r.stores))
	for b := range r.stores {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close 关闭所有 Store 并释放目录占用。
func (r *Registry) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for b, store := range r.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s store: %w", b, err))
		}
	}
	return errors.Join(errs...)
}
