package kafka

import (
	"context"
	"fmt"
	"time"

	applogger "CoinSentry/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook wraps message handling with lifecycle callbacks. A non-nil
// error from BeforeHandle skips the handler and goes straight to error
// processing (OnError, DLQ, offset commit).
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// NoopHook does nothing; the consumer's default.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookError classifies a hook failure, e.g. "ERR_VALIDATION".
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

type startTimeKey struct{}

// LoggingHook logs handler failures and slow handling with partition and
// offset context.
type LoggingHook struct {
	log           *applogger.Logger
	slowThreshold time.Duration
}

// NewLoggingHook creates a logging hook. Handling above slowThreshold is
// warned; zero disables the slow check.
func NewLoggingHook(log *applogger.Logger, slowThreshold time.Duration) *LoggingHook {
	return &LoggingHook{log: log, slowThreshold: slowThreshold}
}

func (h *LoggingHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return context.WithValue(ctx, startTimeKey{}, time.Now()), km, data, nil
}

func (h *LoggingHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
	if err != nil || h.slowThreshold <= 0 {
		return
	}
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed >= h.slowThreshold {
		h.log.Warn("kafka message handled slowly",
			applogger.String("topic", topic),
			applogger.Int("partition", km.Partition),
			applogger.Int64("offset", km.Offset),
			applogger.Duration("elapsed", elapsed),
		)
	}
}

func (h *LoggingHook) OnError(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
	h.log.Error("kafka message handling failed",
		applogger.String("topic", topic),
		applogger.Int("partition", km.Partition),
		applogger.Int64("offset", km.Offset),
		applogger.Error(err),
	)
}
