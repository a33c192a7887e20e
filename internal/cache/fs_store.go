package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// FolderName 是每个存储根目录下固定的缓存子目录名。
	FolderName      = "respcache"
	journalFileName = "cache.metadata"
	blobSuffix      = ".cache"
	tempPrefix      = ".tmp-"
)

// Options 控制 Store 的可选依赖，零值可直接使用。
type Options struct {
	Logger *logrus.Logger
	// Now 允许测试注入时钟，默认 time.Now。
	Now func() time.Time
}

// NewStore 以 root/respcache 为缓存目录构建磁盘缓存，并加载已有 journal。
// 同一目录在进程内只能被一个 Store 持有。
func NewStore(root string, opts Options) (Store, error) {
	if root == "" {
		return nil, errors.New("storage root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	dir := canonicalDirectory(filepath.Join(abs, FolderName))

	release, err := claimDirectory(dir)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &fileStore{
		dir:     dir,
		journal: filepath.Join(dir, journalFileName),
		logger:  logger.WithField("cache_dir", dir),
		now:     now,
		entries: make(map[string]Entry),
		ops:     make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		release: release,
	}

	s.createDirectory()
	s.loadJournal()
	s.sweepUnreferenced()

	go s.loop()
	return s, nil
}

// fileStore 通过单个 worker goroutine 串行化所有 journal/blob 变更。
type fileStore struct {
	dir     string
	journal string
	logger  *logrus.Entry
	now     func() time.Time

	// entries 只允许在 worker 内访问。
	entries map[string]Entry

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	release   func()
}

func (s *fileStore) loop() {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.quit:
			return
		}
	}
}

// exec 把 op 交给 worker 执行并等待完成；Store 已关闭时返回 false。
// op 内部不能再次调用 exec。
func (s *fileStore) exec(op func()) bool {
	finished := make(chan struct{})
	select {
	case s.ops <- func() {
		defer close(finished)
		op()
	}:
	case <-s.quit:
		return false
	}
	<-finished
	return true
}

func (s *fileStore) Get(key string) (*Cached, bool) {
	var (
		entry Entry
		found bool
	)
	s.exec(func() {
		if s.purgeExpiredLocked() > 0 {
			s.saveJournal()
		}
		entry, found = s.entries[key]
	})
	if !found {
		return nil, false
	}

	// blob 写入后不可变，读取无需经过 worker。
	body, err := os.ReadFile(s.blobPath(entry.BlobName))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_get",
			"key":    key,
			"blob":   entry.BlobName,
		}).Warn("cache_blob_unreadable")
		s.exec(func() {
			current, ok := s.entries[key]
			if !ok || current.BlobName != entry.BlobName {
				return
			}
			s.removeLocked(key)
			s.saveJournal()
		})
		return nil, false
	}

	return &Cached{
		Body:       body,
		StatusCode: entry.StatusCode,
		CachedAt:   entry.CachedAt,
		ExpiresAt:  copyTime(entry.ExpiresAt),
	}, true
}

func (s *fileStore) Put(key string, body []byte, statusCode int, expiresAt *time.Time) {
	s.exec(func() {
		s.purgeExpiredLocked()
		// 先移除旧条目，避免旧 blob 成为孤儿文件。
		s.removeLocked(key)

		now := s.now()
		if expiresAt != nil && expiresAt.Before(now) {
			s.saveJournal()
			return
		}

		name := uuid.NewString() + blobSuffix
		if err := s.writeBlob(name, body); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_put",
				"key":    key,
			}).Warn("cache_blob_write_failed")
			s.saveJournal()
			return
		}

		entry := Entry{
			Key:        key,
			BlobName:   name,
			StatusCode: statusCode,
			CachedAt:   now.Truncate(time.Microsecond),
		}
		if expiresAt != nil {
			exp := expiresAt.Truncate(time.Microsecond)
			entry.ExpiresAt = &exp
		}
		s.entries[key] = entry
		s.saveJournal()
	})
}

func (s *fileStore) Remove(key string) {
	s.exec(func() {
		s.purgeExpiredLocked()
		s.removeLocked(key)
		s.saveJournal()
	})
}

func (s *fileStore) RemoveAll() {
	s.exec(func() {
		if err := os.RemoveAll(s.dir); err != nil {
			s.logger.WithError(err).WithField("action", "cache_clear").Warn("cache_dir_remove_failed")
		}
		s.createDirectory()
		s.entries = make(map[string]Entry)
	})
}

func (s *fileStore) PurgeExpired() int {
	var removed int
	s.exec(func() {
		removed = s.purgeExpiredLocked()
		if removed > 0 {
			s.saveJournal()
		}
	})
	return removed
}

func (s *fileStore) Entries() []Entry {
	var out []Entry
	s.exec(func() {
		out = make([]Entry, 0, len(s.entries))
		for _, entry := range s.entries {
			entry.ExpiresAt = copyTime(entry.ExpiresAt)
			out = append(out, entry)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *fileStore) Close() error {
	err := ErrStoreClosed
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.release()
		err = nil
	})
	return err
}

// purgeExpiredLocked 移除过期条目并返回数量，不写 journal。
func (s *fileStore) purgeExpiredLocked() int {
	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			s.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"action":  "cache_purge",
			"removed": removed,
		}).Debug("cache_expired_purged")
	}
	return removed
}

func (s *fileStore) removeLocked(key string) {
	entry, ok := s.entries[key]
	if !ok {
		return
	}
	if err := os.Remove(s.blobPath(entry.BlobName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": "blob_remove",
			"key":    key,
			"blob":   entry.BlobName,
		}).Warn("cache_blob_remove_failed")
	}
	delete(s.entries, key)
}

// writeBlob 通过临时文件 + rename 保证写入原子性，失败时清理临时文件。
func (s *fileStore) writeBlob(name string, body []byte) error {
	tempFile, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, s.blobPath(name)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) createDirectory() {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.WithError(err).WithField("action", "cache_mkdir").Warn("cache_dir_create_failed")
	}
}

func (s *fileStore) blobPath(name string) string {
	return filepath.Join(s.dir, name)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
