package events

import (
	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	"github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"
)

// Subscriber turns orchestrator events into log records, so progress and
// outcomes show up in the log stream (and through it the SSE feed) without
// the orchestrator knowing about either.
type Subscriber struct {
	log zerolog.Logger
	bus EventBus.Bus
}

func NewSubscribers(log logger.Logger, bus EventBus.Bus) *Subscriber {
	s := &Subscriber{
		log: log.With().Str("module", "events").Logger(),
		bus: bus,
	}
	s.Register()
	return s
}

func (s *Subscriber) Register() {
	if err := s.bus.Subscribe(domain.EventSyncProgress, s.onProgress); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventSyncProgress).Msg("could not subscribe")
	}
	if err := s.bus.Subscribe(domain.EventSyncCompleted, s.onCompleted); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventSyncCompleted).Msg("could not subscribe")
	}
}

func (s *Subscriber) onProgress(e domain.SyncProgress) {
	s.log.Debug().
		Str("class", string(e.Class)).
		Str("stage", e.Stage).
		Int("completed", e.Completed).
		Int("total", e.Total).
		Msg("sync progress")
}

func (s *Subscriber) onCompleted(e domain.SyncCompleted) {
	ev := s.log.Info()
	if e.Result == domain.SyncResultFailed {
		ev = s.log.Error()
	}
	ev.Str("class", string(e.Class)).
		Str("result", string(e.Result)).
		Str("errorCode", e.ErrorCode).
		Dur("elapsed", e.Elapsed).
		Msg("sync completed")
}
