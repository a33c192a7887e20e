package revalidate

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/respcache/respcache/internal/expiration"
	"github.com/respcache/respcache/internal/logging"
)

// Transport performs the network half of a request. It owns cancellation: when
// ctx is done it should return promptly.
type Transport interface {
	Do(ctx context.Context, req Request) Completion
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) Completion

// Do makes TransportFunc satisfy Transport.
func (f TransportFunc) Do(ctx context.Context, req Request) Completion {
	return f(ctx, req)
}

// Client couples one store with a transport and runs a fresh Coordinator per request.
type Client struct {
	transport Transport
	store     Store
	logger    *logrus.Logger
	resolver  expiration.Resolver
}

// NewClient builds a client. store may be nil to disable caching entirely.
func NewClient(transport Transport, store Store, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		transport: transport,
		store:     store,
		logger:    logger,
		resolver:  expiration.NewResolver(),
	}
}

// WithClock returns a copy of the client whose expiration resolver uses now.
func (c *Client) WithClock(now func() time.Time) *Client {
	clone := *c
	clone.resolver = expiration.NewResolverWithClock(now)
	return &clone
}

// Do runs the lookup → optional preview → fetch → compare → optional second
// delivery sequence. Handlers run on the calling goroutine. When ctx is done by
// the time the transport returns, nothing further is delivered and ctx.Err() is
// returned.
func (c *Client) Do(ctx context.Context, req Request, handlers ...DeliverFunc) error {
	started := time.Now()
	var (
		delivered []string
		failed    bool
	)
	record := func(d Delivery) {
		if d.Failed() {
			failed = true
			delivered = append(delivered, "failure")
			return
		}
		delivered = append(delivered, d.Source.String())
	}

	coordinator := newCoordinator(c.store, c.resolver, req, append([]DeliverFunc{record}, handlers...))
	coordinator.Dispatch()

	result := c.transport.Do(ctx, req)
	if err := ctx.Err(); err != nil {
		coordinator.Cancel()
		c.logger.WithFields(logging.RequestFields(req.Method, req.URL, req.Policy.String())).
			WithField("action", "revalidate").
			WithError(err).
			Info("request_cancelled")
		return err
	}
	coordinator.Complete(result)

	fields := logging.RequestFields(req.Method, req.URL, req.Policy.String())
	fields["action"] = "revalidate"
	fields["status"] = result.StatusCode
	fields["deliveries"] = delivered
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	entry := c.logger.WithFields(fields)
	if failed {
		entry.WithError(result.Err).Warn("request_failed")
	} else {
		entry.Debug("request_completed")
	}
	return nil
}

// Fetch is Do with the deliveries collected in order.
func (c *Client) Fetch(ctx context.Context, req Request) ([]Delivery, error) {
	var out []Delivery
	err := c.Do(ctx, req, func(d Delivery) {
		out = append(out, d)
	})
	return out, err
}
