package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// loadJournal 读取 cache.metadata。整文件无法解析时视为空缓存；
// 单条记录无法解析时跳过该条并记录日志，其余条目照常加载。
func (s *fileStore) loadJournal() {
	s.entries = make(map[string]Entry)

	data, err := os.ReadFile(s.journal)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithField("action", "journal_load").Warn("journal_read_failed")
		}
		return
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.WithError(err).WithField("action", "journal_load").Warn("journal_corrupt")
		return
	}

	for idx, item := range raw {
		var rec journalRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			s.quarantine(idx, err)
			continue
		}
		entry, err := entryFromRecord(rec)
		if err != nil {
			s.quarantine(idx, err)
			continue
		}
		s.entries[entry.Key] = entry
	}

	s.logger.WithFields(logrus.Fields{
		"action":  "journal_load",
		"entries": len(s.entries),
		"records": len(raw),
	}).Debug("journal_loaded")
}

func (s *fileStore) quarantine(idx int, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"action": "journal_load",
		"record": idx,
	}).Warn("journal_record_skipped")
}

// saveJournal 以临时文件 + rename 整体重写 journal，记录按 key 排序保证输出稳定。
func (s *fileStore) saveJournal() {
	records := make([]journalRecord, 0, len(s.entries))
	for _, entry := range s.entries {
		records = append(records, entry.record())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].RequestURL < records[j].RequestURL })

	data, err := json.Marshal(records)
	if err != nil {
		s.logger.WithError(err).WithField("action", "journal_save").Warn("journal_encode_failed")
		return
	}

	if err := s.writeJournalFile(data); err != nil {
		s.logger.WithError(err).WithField("action", "journal_save").Warn("journal_write_failed")
	}
}

func (s *fileStore) writeJournalFile(data []byte) error {
	tempFile, err := os.CreateTemp(s.dir, tempPrefix+"journal-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, s.journal); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// sweepUnreferenced 删除 journal 未引用的 blob 以及崩溃遗留的临时文件。
func (s *fileStore) sweepUnreferenced() {
	items, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithField("action", "cache_sweep").Warn("cache_dir_read_failed")
		}
		return
	}

	referenced := make(map[string]struct{}, len(s.entries))
	for _, entry := range s.entries {
		referenced[entry.BlobName] = struct{}{}
	}

	swept := 0
	for _, item := range items {
		name := item.Name()
		if item.IsDir() || name == journalFileName {
			continue
		}
		if _, ok := referenced[name]; ok {
			continue
		}
		if !strings.HasSuffix(name, blobSuffix) && !strings.HasPrefix(name, tempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_sweep",
				"blob":   name,
			}).Warn("cache_blob_remove_failed")
			continue
		}
		swept++
	}
	if swept > 0 {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_sweep",
			"swept":  swept,
		}).Info("cache_unreferenced_removed")
	}
}
