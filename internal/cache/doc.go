// Package cache defines the disk-backed response store keyed by request URL.
// Each store owns one directory holding an opaque blob file per entry plus a
// single journal file (cache.metadata) that maps keys to entry records. All
// mutations run on one worker goroutine per store, so the whole-file journal is
// never written concurrently. Filesystem failures are logged and swallowed: a
// broken cache degrades to "always a miss" instead of failing the request that
// consulted it. The revalidate package layers the two-phase delivery protocol on
// top of this store.
package cache
