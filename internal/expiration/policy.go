// Package expiration resolves a per-request caching policy, optionally combined
// with the response headers, into a storage decision and an absolute expiration
// instant.
package expiration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the caching policies a request can carry.
type Kind string

const (
	KindDoNotCache          Kind = "do-not-cache"
	KindNeverExpires        Kind = "never-expires"
	KindExpireAt            Kind = "expire-at"
	KindFromResponseHeaders Kind = "response-headers"
)

// HeaderCacheControl is the header consulted by KindFromResponseHeaders. The
// lookup uses this exact spelling.
const HeaderCacheControl = "Cache-Control"

// Policy is immutable once attached to a request. The zero value does not cache.
type Policy struct {
	Kind Kind
	// At is only meaningful for KindExpireAt.
	At time.Time
}

func DoNotCache() Policy          { return Policy{Kind: KindDoNotCache} }
func NeverExpires() Policy        { return Policy{Kind: KindNeverExpires} }
func ExpireAt(t time.Time) Policy { return Policy{Kind: KindExpireAt, At: t} }
func FromResponseHeaders() Policy { return Policy{Kind: KindFromResponseHeaders} }

// Caches reports whether the policy allows the store to be consulted at all.
func (p Policy) Caches() bool {
	switch p.Kind {
	case KindNeverExpires, KindExpireAt, KindFromResponseHeaders:
		return true
	default:
		return false
	}
}

func (p Policy) String() string {
	if p.Kind == KindExpireAt {
		return fmt.Sprintf("%s(%s)", p.Kind, p.At.UTC().Format(time.RFC3339))
	}
	if p.Kind == "" {
		return string(KindDoNotCache)
	}
	return string(p.Kind)
}

// ParseKind normalizes configuration and query-string spellings.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "do-not-cache", "none", "no-cache":
		return KindDoNotCache, nil
	case "never-expires", "never":
		return KindNeverExpires, nil
	case "expire-at", "at":
		return KindExpireAt, nil
	case "response-headers", "headers":
		return KindFromResponseHeaders, nil
	default:
		return "", fmt.Errorf("unknown caching policy: %q", raw)
	}
}

// Decision is the outcome of resolving a policy. Store=false means "do not
// store", which is distinct from Store=true with a nil ExpiresAt (unbounded).
type Decision struct {
	Store     bool
	ExpiresAt *time.Time
}

// Resolver computes decisions against an injectable clock.
type Resolver struct {
	now func() time.Time
}

// NewResolver uses time.Now as its clock.
func NewResolver() Resolver {
	return Resolver{now: time.Now}
}

// NewResolverWithClock is used by tests and by callers sharing a fake clock with the store.
func NewResolverWithClock(now func() time.Time) Resolver {
	if now == nil {
		now = time.Now
	}
	return Resolver{now: now}
}

// Resolve maps a policy and the response headers to a Decision. An already-past
// instant is returned as-is; the store treats it as an invalidation.
func (r Resolver) Resolve(p Policy, headers map[string]string) Decision {
	switch p.Kind {
	case KindNeverExpires:
		return Decision{Store: true}
	case KindExpireAt:
		at := p.At
		return Decision{Store: true, ExpiresAt: &at}
	case KindFromResponseHeaders:
		maxAge, ok := ParseMaxAge(headers[HeaderCacheControl])
		if !ok {
			return Decision{}
		}
		now := r.now
		if now == nil {
			now = time.Now
		}
		at := now().Add(maxAge)
		return Decision{Store: true, ExpiresAt: &at}
	default:
		return Decision{}
	}
}

// Resolve is a convenience wrapper around NewResolver().Resolve.
func Resolve(p Policy, headers map[string]string) Decision {
	return NewResolver().Resolve(p, headers)
}

// ParseMaxAge scans a Cache-Control value left to right and parses the first
// directive mentioning max-age or s-maxage. A malformed first match is a failure;
// later directives are not consulted.
func ParseMaxAge(cacheControl string) (time.Duration, bool) {
	if strings.TrimSpace(cacheControl) == "" {
		return 0, false
	}
	for _, directive := range strings.Split(cacheControl, ",") {
		if !strings.Contains(directive, "max-age") && !strings.Contains(directive, "s-maxage") {
			continue
		}
		parts := strings.Split(directive, "=")
		if len(parts) != 2 {
			return 0, false
		}
		seconds, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(parts[1]), `"`), 10, 64)
		// out-of-range values come back as ±MaxInt64 and saturate below
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return clampSeconds(seconds), true
	}
	return 0, false
}

// maxAgeLimit is the largest number of whole seconds a time.Duration can hold.
const maxAgeLimit = math.MaxInt64 / int64(time.Second)

// clampSeconds converts seconds to a Duration, saturating instead of wrapping.
func clampSeconds(seconds int64) time.Duration {
	switch {
	case seconds > maxAgeLimit:
		seconds = maxAgeLimit
	case seconds < -maxAgeLimit:
		seconds = -maxAgeLimit
	}
	return time.Duration(seconds) * time.Second
}
