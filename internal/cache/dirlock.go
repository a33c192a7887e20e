package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	claimedMu   sync.Mutex
	claimedDirs = make(map[string]struct{})
)

// claimDirectory 在进程内登记 dir 的唯一所有者，返回的 release 用于 Close 时释放。
func claimDirectory(dir string) (func(), error) {
	claimedMu.Lock()
	defer claimedMu.Unlock()

	if _, exists := claimedDirs[dir]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryInUse, dir)
	}
	claimedDirs[dir] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			claimedMu.Lock()
			delete(claimedDirs, dir)
			claimedMu.Unlock()
		})
	}, nil
}

// canonicalDirectory 先创建目录再解析符号链接，使指向同一物理目录的不同路径得到同一 key。
// 创建或解析失败时退回原路径，错误留给后续的目录操作记录。
func canonicalDirectory(dir string) string {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dir
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return dir
	}
	return resolved
}
