package usecase

import (
	"context"

	"CoinSentry/internal/domain/models"
	drepo "CoinSentry/internal/domain/repository"
	mid "CoinSentry/internal/middleware"
)

// LiveCollector reads the push stream and folds ticks into the aggregator so
// consensus stays fresh between polling cycles.
type LiveCollector struct {
	stream  drepo.ObservationStream
	agg     *Aggregator
	metrics drepo.Metrics
	pipe    *mid.ObservationPipeline
}

// NewLiveCollector creates a new LiveCollector instance.
func NewLiveCollector(stream drepo.ObservationStream, agg *Aggregator, metrics drepo.Metrics, pipe *mid.ObservationPipeline) *LiveCollector {
	return &LiveCollector{stream: stream, agg: agg, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the stream is connected.
func (c *LiveCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *LiveCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	obsCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, obsCh, errCh)
	return nil
}

// consume drains one connection's channels; when the reader fails or closes
// them it reconnects and resumes on the fresh channels. The old channels are
// abandoned, a closed channel would otherwise deliver zero values forever.
func (c *LiveCollector) consume(ctx context.Context, obsCh <-chan *models.Observation, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				c.metrics.RecordError("stream")
			}
			obsCh, errCh = c.resume(ctx)
			if obsCh == nil {
				return
			}
		case o, ok := <-obsCh:
			if !ok {
				obsCh, errCh = c.resume(ctx)
				if obsCh == nil {
					return
				}
				continue
			}
			if o == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, o)
			} else {
				c.agg.OfferLive(o)
			}
		}
	}
}

// resume redials until a connection sticks, then opens a fresh read. The
// stream paces the retries with its own reconnect delay. Returns nil channels
// only when the context ends.
func (c *LiveCollector) resume(ctx context.Context) (<-chan *models.Observation, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("stream_reconnect")
			continue
		}
		obsCh, errCh := c.stream.Read(ctx)
		return obsCh, errCh
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *LiveCollector) Shutdown(_ context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}

// LiveOffer is the pipeline's downstream: accepted ticks land in the
// aggregator's live set.
type LiveOffer struct {
	agg *Aggregator
}

func NewLiveOffer(agg *Aggregator) *LiveOffer { return &LiveOffer{agg: agg} }

func (l *LiveOffer) Process(_ context.Context, o *models.Observation) error {
	l.agg.OfferLive(o)
	return nil
}

var _ mid.Proc = (*LiveOffer)(nil)
