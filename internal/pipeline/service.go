package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/guildrelay/guildrelay/common/logging"
	"github.com/guildrelay/guildrelay/common/middleware"
	"github.com/guildrelay/guildrelay/internal/metrics"
	"github.com/guildrelay/guildrelay/internal/models"
	"github.com/guildrelay/guildrelay/internal/normalizer"
	"github.com/guildrelay/guildrelay/internal/relay"
)

// Recorder receives the outcome of every delivery, e.g. a relaystats
// collector.
type Recorder interface {
	Record(guildID, eventType, outcome string)
}

const reasonShuttingDown = "shutting_down"

type ServiceOption func(*Service)

// WithRecorder reports delivery outcomes to r.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithServiceLogger sets the logger for dispatched events.
func WithServiceLogger(logger *logging.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service connects gateway callbacks to the dispatcher. Each accepted event
// is delivered on its own goroutine; callers never wait on the webhook.
type Service struct {
	pipeline  *Pipeline
	deliverer relay.Deliverer
	recorder  Recorder
	logger    *logging.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewService(p *Pipeline, d relay.Deliverer, opts ...ServiceOption) *Service {
	s := &Service{
		pipeline:  p,
		deliverer: d,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pipeline returns the builders the service runs.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

func (s *Service) HandleMessageCreate(ctx context.Context, m models.Message) {
	s.handle(ctx, normalizer.EventMessageCreate, func(ctx context.Context) (Forward, bool) {
		return s.pipeline.MessageCreate(ctx, m)
	})
}

func (s *Service) HandleMessageUpdate(ctx context.Context, e models.MessageEdit) {
	s.handle(ctx, normalizer.EventMessageUpdate, func(ctx context.Context) (Forward, bool) {
		return s.pipeline.MessageUpdate(ctx, e)
	})
}

func (s *Service) HandleMessageDelete(ctx context.Context, m models.Message) {
	s.handle(ctx, normalizer.EventMessageDelete, func(ctx context.Context) (Forward, bool) {
		return s.pipeline.MessageDelete(ctx, m)
	})
}

func (s *Service) HandleMemberAdd(ctx context.Context, m models.Member) {
	s.handle(ctx, normalizer.EventMemberAdd, func(ctx context.Context) (Forward, bool) {
		return s.pipeline.MemberAdd(ctx, m)
	})
}

func (s *Service) HandleMemberRemove(ctx context.Context, m models.Member) {
	s.handle(ctx, normalizer.EventMemberRemove, func(ctx context.Context) (Forward, bool) {
		return s.pipeline.MemberRemove(ctx, m)
	})
}

func (s *Service) HandleMemberUpdate(ctx context.Context, u models.MemberUpdate) {
	s.handle(ctx, normalizer.EventMemberUpdate, func(ctx context.Context) (Forward, bool) {
		return s.pipeline.MemberUpdate(ctx, u)
	})
}

func (s *Service) HandleReactionAdd(ctx context.Context, r models.Reaction) {
	s.handle(ctx, normalizer.EventReactionAdd, func(ctx context.Context) (Forward, bool) {
		return s.pipeline.ReactionAdd(ctx, r)
	})
}

// handle builds the document synchronously, since resolution may need the
// gateway caches as they are right now, then delivers it in the background.
func (s *Service) handle(ctx context.Context, kind string, build func(context.Context) (Forward, bool)) {
	if middleware.GetRequestID(ctx) == "" {
		ctx = middleware.WithID(ctx, "")
	}
	defer s.recoverFault(ctx, kind)

	fwd, ok := build(ctx)
	if !ok {
		return
	}
	s.Dispatch(ctx, fwd)
}

// Dispatch delivers fwd on a new goroutine. The delivery outlives ctx's
// cancellation but keeps its values. Once Wait has been called, fwd is
// dropped.
func (s *Service) Dispatch(ctx context.Context, fwd Forward) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.EventsFiltered.WithLabelValues(fwd.EventType, reasonShuttingDown).Inc()
		s.logger.WarnContext(ctx, "event dropped, relay is shutting down",
			logging.EventType(fwd.EventType),
		)
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		defer s.recoverFault(ctx, fwd.EventType)

		outcome := s.deliverer.Deliver(ctx, fwd.EventType, fwd.Data)
		if s.recorder != nil {
			s.recorder.Record(fwd.GuildID, fwd.EventType, string(outcome))
		}
	}()
}

// Wait stops accepting new deliveries, then blocks until every dispatched
// delivery has finished or timeout elapses, and reports whether all
// finished.
func (s *Service) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Service) recoverFault(ctx context.Context, kind string) {
	if r := recover(); r != nil {
		metrics.HandlerPanics.Inc()
		s.logger.ErrorContext(ctx, "unhandled fault",
			logging.EventType(kind),
			logging.Panic(r),
		)
	}
}
