package cache

import (
	"errors"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"
)

// Entry 描述单个缓存响应的元数据，Key 即请求 URL，同一 Store 内唯一。
type Entry struct {
	Key        string
	BlobName   string
	StatusCode int
	CachedAt   time.Time
	// ExpiresAt 为 nil 表示永不过期，只能通过手动清理移除。
	ExpiresAt *time.Time
}

// Expired 判断条目在 now 时刻是否已经过期。
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// Equal 按全部字段比较，仅用于测试与调试。
func (e Entry) Equal(other Entry) bool {
	if e.Key != other.Key || e.BlobName != other.BlobName || e.StatusCode != other.StatusCode {
		return false
	}
	if !e.CachedAt.Equal(other.CachedAt) {
		return false
	}
	switch {
	case e.ExpiresAt == nil && other.ExpiresAt == nil:
		return true
	case e.ExpiresAt == nil || other.ExpiresAt == nil:
		return false
	default:
		return e.ExpiresAt.Equal(*other.ExpiresAt)
	}
}

// journalRecord 是 cache.metadata 中单条记录的固定结构。
type journalRecord struct {
	RequestURL string  `json:"request_url"`
	CacheURL   string  `json:"cache_url"`
	CachedAt   string  `json:"cached_at"`
	StatusCode *int    `json:"status_code"`
	Expiration *string `json:"expiration,omitempty"`
}

func (e Entry) record() journalRecord {
	status := e.StatusCode
	rec := journalRecord{
		RequestURL: e.Key,
		CacheURL:   e.BlobName,
		CachedAt:   formatEpoch(e.CachedAt),
		StatusCode: &status,
	}
	if e.ExpiresAt != nil {
		exp := formatEpoch(*e.ExpiresAt)
		rec.Expiration = &exp
	}
	return rec
}

var errIncompleteRecord = errors.New("journal record incomplete")

// entryFromRecord 校验并还原一条记录；缺字段或时间戳无法解析时返回错误，由调用方隔离。
func entryFromRecord(rec journalRecord) (Entry, error) {
	if rec.RequestURL == "" || rec.CacheURL == "" || rec.StatusCode == nil {
		return Entry{}, errIncompleteRecord
	}
	blob := blobNameFromCacheURL(rec.CacheURL)
	if blob == "" {
		return Entry{}, fmt.Errorf("invalid cache_url %q", rec.CacheURL)
	}
	cachedAt, err := parseEpoch(rec.CachedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("cached_at: %w", err)
	}
	entry := Entry{
		Key:        rec.RequestURL,
		BlobName:   blob,
		StatusCode: *rec.StatusCode,
		CachedAt:   cachedAt,
	}
	if rec.Expiration != nil {
		exp, err := parseEpoch(*rec.Expiration)
		if err != nil {
			return Entry{}, fmt.Errorf("expiration: %w", err)
		}
		entry.ExpiresAt = &exp
	}
	return entry, nil
}

// blobNameFromCacheURL 兼容旧版以 file:// 绝对地址记录的 cache_url，只保留文件名。
func blobNameFromCacheURL(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "file://")
	name := path.Base(strings.ReplaceAll(raw, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// formatEpoch 输出带微秒小数的 epoch 秒字符串，例如 "1700000000.123456"。
func formatEpoch(t time.Time) string {
	us := t.UnixMicro()
	sign := ""
	if us < 0 {
		sign = "-"
		us = -us
	}
	return fmt.Sprintf("%s%d.%06d", sign, us/1e6, us%1e6)
}

// parseEpoch 解析 formatEpoch 的输出，同时接受纯整数与浮点写法（如 "1492617600.0"）。
func parseEpoch(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	secPart, fracPart, hasFrac := strings.Cut(raw, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil || (hasFrac && !isDigits(fracPart)) {
		return parseFloatEpoch(raw)
	}

	var nsec int64
	if hasFrac && fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		fracPart += strings.Repeat("0", 9-len(fracPart))
		nsec, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
		}
	}
	if strings.HasPrefix(secPart, "-") {
		nsec = -nsec
	}
	return time.Unix(sec, nsec), nil
}

func parseFloatEpoch(raw string) (time.Time, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	whole, frac := math.Modf(f)
	return time.Unix(int64(whole), int64(frac*1e9)), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
