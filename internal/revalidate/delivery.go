package revalidate

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/respcache/respcache/internal/expiration"
)

// Source tags each delivery with where its bytes came from.
type Source int

const (
	// SourceNotCached is the first-ever fetch for a key, or any uncached request.
	SourceNotCached Source = iota
	// SourceFromCache is the immediate preview read from disk.
	SourceFromCache
	// SourceUpdatedCache is a network result that replaced a different cached body.
	SourceUpdatedCache
)

func (s Source) String() string {
	switch s {
	case SourceFromCache:
		return "from-cache"
	case SourceUpdatedCache:
		return "updated-cache"
	default:
		return "not-cached"
	}
}

// Request is the originating request as seen by the coordinator. Its Policy is
// immutable once the request is issued.
type Request struct {
	URL     string
	Method  string
	Policy  expiration.Policy
	Headers map[string]string
	Body    []byte
}

// IsGet reports whether the request is eligible for caching at all.
func (r Request) IsGet() bool {
	return r.Method == "" || strings.EqualFold(r.Method, http.MethodGet)
}

// Completion is the transport's terminal signal for one request. StatusCode is
// zero when no response was received.
type Completion struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Err        error
}

// Succeeded follows the transport contract: any received status is a success.
func (c Completion) Succeeded() bool {
	return c.StatusCode != 0
}

// ErrNoResponse is delivered when the transport reports neither a status nor an error.
var ErrNoResponse = errors.New("transport completed without a response")

// Delivery is one result handed to the caller. Err is set only on failure.
type Delivery struct {
	StatusCode int
	Body       []byte
	Source     Source
	// CachedAt is set for SourceFromCache deliveries.
	CachedAt time.Time
	Err      error
}

// Failed reports whether this delivery carries a transport failure.
func (d Delivery) Failed() bool {
	return d.Err != nil
}

// DeliverFunc receives deliveries in order, on the goroutine that drives the coordinator.
type DeliverFunc func(Delivery)
