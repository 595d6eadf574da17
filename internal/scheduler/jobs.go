package scheduler

import (
	"context"

	"github.com/joeyliu6/weibodr-sync/internal/profile"
	syncer "github.com/joeyliu6/weibodr-sync/internal/sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// autoSyncJob fires the bundled sync on every tick. A tick is skipped, not
// queued, when no profile is active or a bundle is already in flight.
type autoSyncJob struct {
	Log      zerolog.Logger
	SyncSvc  syncer.Service
	Profiles profile.Service
}

func (j *autoSyncJob) Run() {
	ctx := context.Background()

	active, err := j.Profiles.Active(ctx)
	if err != nil {
		j.Log.Error().Err(err).Msg("could not resolve active profile, skipping tick")
		return
	}
	if active == nil {
		j.Log.Debug().Msg("no active profile, skipping tick")
		return
	}

	record, err := j.SyncSvc.SyncAll(ctx)
	if err != nil {
		if errors.Is(err, syncer.ErrAlreadyRunning) {
			j.Log.Debug().Msg("a sync is already in flight, skipping tick")
			return
		}
		j.Log.Error().Err(err).Msg("scheduled sync failed")
		return
	}

	j.Log.Info().Str("result", string(record.Result)).Msg("scheduled sync finished")
}
