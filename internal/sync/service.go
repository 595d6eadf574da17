package sync

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"
	"github.com/joeyliu6/weibodr-sync/internal/profile"
	"github.com/joeyliu6/weibodr-sync/internal/webdav"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrAlreadyRunning is returned when an operation is requested for a data
// class that already has one in flight. Requests are rejected, never queued.
var ErrAlreadyRunning = errors.New("a sync operation for this data class is already running")

// HistoryImportMode selects how a local history file import is applied.
type HistoryImportMode string

const (
	HistoryImportMerge   HistoryImportMode = "merge"
	HistoryImportReplace HistoryImportMode = "replace"
)

type Service interface {
	// UploadConfig pushes the full local configuration snapshot to the
	// remote store, overwriting the remote copy.
	UploadConfig(ctx context.Context) (*domain.SyncStatusRecord, error)
	// DownloadConfig fetches the remote snapshot and applies it with the
	// given strategy. A missing remote object is a hard error here.
	DownloadConfig(ctx context.Context, strategy ConfigStrategy) (*domain.SyncStatusRecord, error)
	UploadHistory(ctx context.Context, strategy HistoryStrategy) (*domain.SyncStatusRecord, error)
	DownloadHistory(ctx context.Context, strategy HistoryStrategy) (*domain.SyncStatusRecord, error)
	// SyncAll runs the scheduled bundle: config upload, then history merge
	// upload. Overall result is success only when both sub-operations
	// succeed, partial when exactly one does.
	SyncAll(ctx context.Context) (*domain.SyncStatusRecord, error)

	// Local file transfer, no remote involved.
	ExportConfig(ctx context.Context) ([]byte, error)
	ImportConfig(ctx context.Context, data []byte, strategy ConfigStrategy) error
	ExportHistory(ctx context.Context) ([]byte, error)
	ImportHistory(ctx context.Context, data []byte, mode HistoryImportMode) (int, error)

	Status(ctx context.Context) ([]domain.SyncStatusRecord, error)
	ClassStatus(ctx context.Context, class domain.DataClass) (*domain.SyncStatusRecord, error)
	Running(class domain.DataClass) bool
}

type classGuard struct {
	sem     *semaphore.Weighted
	running atomic.Bool
}

type service struct {
	log      zerolog.Logger
	baseLog  logger.Logger
	profiles profile.Service
	settings domain.SettingsRepo
	history  domain.HistoryRepo
	ledger   domain.SyncStatusRepo
	bus      EventBus.Bus

	guards    map[domain.DataClass]*classGuard
	newClient func(log logger.Logger, profile domain.ConnectionProfile) webdav.Client
}

func NewService(log logger.Logger, bus EventBus.Bus, profiles profile.Service, settings domain.SettingsRepo, history domain.HistoryRepo, ledger domain.SyncStatusRepo) Service {
	return &service{
		log:      log.With().Str("module", "sync").Logger(),
		baseLog:  log,
		profiles: profiles,
		settings: settings,
		history:  history,
		ledger:   ledger,
		bus:      bus,
		guards: map[domain.DataClass]*classGuard{
			domain.DataClassConfig:  {sem: semaphore.NewWeighted(1)},
			domain.DataClassHistory: {sem: semaphore.NewWeighted(1)},
			domain.DataClassBundle:  {sem: semaphore.NewWeighted(1)},
		},
		newClient: webdav.NewClient,
	}
}

func (s *service) Running(class domain.DataClass) bool {
	guard, ok := s.guards[class]
	return ok && guard.running.Load()
}

func (s *service) Status(ctx context.Context) ([]domain.SyncStatusRecord, error) {
	return s.ledger.List(ctx)
}

func (s *service) ClassStatus(ctx context.Context, class domain.DataClass) (*domain.SyncStatusRecord, error) {
	return s.ledger.Get(ctx, class)
}

// run executes fn under the data class' single-flight guard against the
// active profile, then writes the ledger record unconditionally, so the last
// attempt is always visible whatever its outcome.
func (s *service) run(ctx context.Context, class domain.DataClass, op string, fn func(ctx context.Context, client webdav.Client) error) (*domain.SyncStatusRecord, error) {
	guard := s.guards[class]
	if !guard.sem.TryAcquire(1) {
		return nil, ErrAlreadyRunning
	}
	guard.running.Store(true)
	defer func() {
		guard.running.Store(false)
		guard.sem.Release(1)
	}()

	started := time.Now()
	err := func() error {
		active, err := s.profiles.Active(ctx)
		if err != nil {
			return err
		}
		if active == nil {
			return domain.NewSyncError(domain.ErrorClassNotFound, "no-active-profile",
				errors.New("no connection profile is active"))
		}
		return fn(ctx, s.newClient(s.baseLog, *active))
	}()

	record := domain.SyncStatusRecord{
		Class:       class,
		AttemptedAt: started,
		Result:      domain.SyncResultSuccess,
	}
	if err != nil {
		record.Result = domain.SyncResultFailed
		errClass, code := domain.ClassifyError(err)
		record.ErrorCode = code
		record.ErrorDetail = err.Error()
		s.log.Error().Err(err).Str("operation", op).Str("errorClass", string(errClass)).Msg("sync operation failed")
	} else {
		s.log.Info().Str("operation", op).Dur("elapsed", time.Since(started)).Msg("sync operation finished")
	}

	s.writeLedger(ctx, record)
	s.bus.Publish(domain.EventSyncCompleted, domain.SyncCompleted{
		Class:     class,
		Result:    record.Result,
		ErrorCode: record.ErrorCode,
		Elapsed:   time.Since(started),
	})

	return &record, err
}

// writeLedger failures are logged and swallowed: a status bookkeeping problem
// must not turn a finished operation into a failed one.
func (s *service) writeLedger(ctx context.Context, record domain.SyncStatusRecord) {
	if err := s.ledger.Upsert(ctx, record); err != nil {
		s.log.Error().Err(err).Str("class", string(record.Class)).Msg("could not persist sync status")
	}
}

func (s *service) progress(class domain.DataClass, stage string, completed, total int) {
	s.bus.Publish(domain.EventSyncProgress, domain.SyncProgress{
		Class:     class,
		Stage:     stage,
		Completed: completed,
		Total:     total,
	})
}

func (s *service) UploadConfig(ctx context.Context) (*domain.SyncStatusRecord, error) {
	return s.run(ctx, domain.DataClassConfig, "upload-config", func(ctx context.Context, client webdav.Client) error {
		s.progress(domain.DataClassConfig, "collect", 0, 2)
		snap, err := s.collectSnapshot(ctx)
		if err != nil {
			return err
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return domain.NewSyncError(domain.ErrorClassLocalIO, "encode-failed", err)
		}

		s.progress(domain.DataClassConfig, "upload", 1, 2)
		if err := client.PutFile(ctx, domain.DataClassConfig, data); err != nil {
			return err
		}
		s.progress(domain.DataClassConfig, "done", 2, 2)
		return nil
	})
}

func (s *service) DownloadConfig(ctx context.Context, strategy ConfigStrategy) (*domain.SyncStatusRecord, error) {
	return s.run(ctx, domain.DataClassConfig, "download-config", func(ctx context.Context, client webdav.Client) error {
		s.progress(domain.DataClassConfig, "fetch", 0, 2)
		data, err := client.GetFile(ctx, domain.DataClassConfig)
		if err != nil {
			return err
		}
		if data == nil {
			return domain.NewSyncError(domain.ErrorClassNotFound, "remote-missing",
				errors.New("no configuration backup exists on the remote"))
		}

		s.progress(domain.DataClassConfig, "apply", 1, 2)
		if err := s.applySnapshot(ctx, data, strategy); err != nil {
			return err
		}
		s.progress(domain.DataClassConfig, "done", 2, 2)
		return nil
	})
}

// collectSnapshot composes the snapshot to publish: the locally stored
// settings sections plus the current profile registry with ciphertext secrets.
func (s *service) collectSnapshot(ctx context.Context) (*domain.ConfigSnapshot, error) {
	snap, err := s.settings.Get(ctx, domain.SettingsKeyApp)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		snap = &domain.ConfigSnapshot{Extra: map[string]json.RawMessage{}}
	}

	profiles, activeID, err := s.profiles.Export(ctx)
	if err != nil {
		return nil, err
	}
	snap.Profiles = profiles
	snap.ActiveProfileID = activeID
	return snap, nil
}

// applySnapshot validates a candidate snapshot and applies it with the chosen
// strategy. Nothing is mutated when validation fails.
func (s *service) applySnapshot(ctx context.Context, data []byte, strategy ConfigStrategy) error {
	remote, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}

	local, err := s.collectSnapshot(ctx)
	if err != nil {
		return err
	}

	merged, err := ApplyConfigStrategy(strategy, local, remote)
	if err != nil {
		return err
	}

	if err := s.profiles.ReplaceFromSnapshot(ctx, merged); err != nil {
		return err
	}

	// profiles live in their own store; the settings snapshot keeps only
	// the sections the registry does not own
	stored := *merged
	stored.Profiles = nil
	stored.ActiveProfileID = ""
	if err := s.settings.Set(ctx, domain.SettingsKeyApp, &stored); err != nil {
		return err
	}

	// the snapshot may carry different scheduler settings than the ones the
	// running timer was armed with
	s.bus.Publish(domain.EventSettingsChanged, stored.AutoSync)
	return nil
}

func (s *service) UploadHistory(ctx context.Context, strategy HistoryStrategy) (*domain.SyncStatusRecord, error) {
	return s.run(ctx, domain.DataClassHistory, "upload-history", func(ctx context.Context, client webdav.Client) error {
		s.progress(domain.DataClassHistory, "collect", 0, 3)
		local, err := s.history.All(ctx)
		if err != nil {
			return err
		}

		var outgoing []domain.HistoryRecord
		switch strategy {
		case HistoryStrategyForcePush:
			outgoing = local
		case HistoryStrategyMerge, HistoryStrategyIncremental:
			s.progress(domain.DataClassHistory, "fetch", 1, 3)
			remote, err := s.fetchRemoteHistory(ctx, client)
			if err != nil {
				return err
			}
			if strategy == HistoryStrategyMerge {
				outgoing = MergeHistory(local, remote)
			} else {
				outgoing = IncrementalUpload(local, remote)
			}
		default:
			return domain.NewSyncError(domain.ErrorClassFormat, "unknown-strategy",
				errors.Errorf("unknown history upload strategy %q", strategy))
		}

		data, err := EncodeHistory(outgoing)
		if err != nil {
			return err
		}
		s.progress(domain.DataClassHistory, "upload", 2, 3)
		if err := client.PutFile(ctx, domain.DataClassHistory, data); err != nil {
			return err
		}
		s.progress(domain.DataClassHistory, "done", 3, 3)
		return nil
	})
}

func (s *service) DownloadHistory(ctx context.Context, strategy HistoryStrategy) (*domain.SyncStatusRecord, error) {
	return s.run(ctx, domain.DataClassHistory, "download-history", func(ctx context.Context, client webdav.Client) error {
		s.progress(domain.DataClassHistory, "fetch", 0, 2)
		data, err := client.GetFile(ctx, domain.DataClassHistory)
		if err != nil {
			return err
		}
		if data == nil {
			return domain.NewSyncError(domain.ErrorClassNotFound, "remote-missing",
				errors.New("no history backup exists on the remote"))
		}
		remote, err := DecodeHistory(data)
		if err != nil {
			return err
		}

		s.progress(domain.DataClassHistory, "apply", 1, 2)
		switch strategy {
		case HistoryStrategyMergeDownload:
			local, err := s.history.All(ctx)
			if err != nil {
				return err
			}
			// the same last-writer-wins decision as an upload merge, the
			// outcome is just applied locally via insert-or-update-by-id
			merged := MergeHistory(local, remote)
			if _, err := s.history.ImportMerge(ctx, merged); err != nil {
				return err
			}
		case HistoryStrategyOverwriteDownload:
			if err := s.history.ImportReplace(ctx, AssignIDs(remote)); err != nil {
				return err
			}
		default:
			return domain.NewSyncError(domain.ErrorClassFormat, "unknown-strategy",
				errors.Errorf("unknown history download strategy %q", strategy))
		}
		s.progress(domain.DataClassHistory, "done", 2, 2)
		return nil
	})
}

func (s *service) fetchRemoteHistory(ctx context.Context, client webdav.Client) ([]domain.HistoryRecord, error) {
	data, err := client.GetFile(ctx, domain.DataClassHistory)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return DecodeHistory(data)
}

func (s *service) SyncAll(ctx context.Context) (*domain.SyncStatusRecord, error) {
	guard := s.guards[domain.DataClassBundle]
	if !guard.sem.TryAcquire(1) {
		return nil, ErrAlreadyRunning
	}
	guard.running.Store(true)
	defer func() {
		guard.running.Store(false)
		guard.sem.Release(1)
	}()

	started := time.Now()

	// config first, then history, sequentially: one writer against the
	// remote directory at a time
	cfgRecord, cfgErr := s.UploadConfig(ctx)
	histRecord, histErr := s.UploadHistory(ctx, HistoryStrategyMerge)

	record := domain.SyncStatusRecord{
		Class:       domain.DataClassBundle,
		AttemptedAt: started,
	}
	switch {
	case cfgErr == nil && histErr == nil:
		record.Result = domain.SyncResultSuccess
	case cfgErr != nil && histErr != nil:
		record.Result = domain.SyncResultFailed
		record.ErrorCode, record.ErrorDetail = bundleError(cfgRecord, cfgErr)
	default:
		record.Result = domain.SyncResultPartial
		if cfgErr != nil {
			record.ErrorCode, record.ErrorDetail = bundleError(cfgRecord, cfgErr)
		} else {
			record.ErrorCode, record.ErrorDetail = bundleError(histRecord, histErr)
		}
	}

	s.writeLedger(ctx, record)
	s.bus.Publish(domain.EventSyncCompleted, domain.SyncCompleted{
		Class:     domain.DataClassBundle,
		Result:    record.Result,
		ErrorCode: record.ErrorCode,
		Elapsed:   time.Since(started),
	})

	if record.Result == domain.SyncResultFailed {
		return &record, cfgErr
	}
	return &record, nil
}

func bundleError(record *domain.SyncStatusRecord, err error) (code, detail string) {
	if record != nil && record.ErrorCode != "" {
		return record.ErrorCode, record.ErrorDetail
	}
	// a sub-operation rejected by its guard never produced a record
	if errors.Is(err, ErrAlreadyRunning) {
		return "already-running", err.Error()
	}
	_, code = domain.ClassifyError(err)
	return code, err.Error()
}

func (s *service) ExportConfig(ctx context.Context) ([]byte, error) {
	snap, err := s.collectSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, domain.NewSyncError(domain.ErrorClassLocalIO, "encode-failed", err)
	}
	return data, nil
}

func (s *service) ImportConfig(ctx context.Context, data []byte, strategy ConfigStrategy) error {
	guard := s.guards[domain.DataClassConfig]
	if !guard.sem.TryAcquire(1) {
		return ErrAlreadyRunning
	}
	defer guard.sem.Release(1)

	return s.applySnapshot(ctx, data, strategy)
}

func (s *service) ExportHistory(ctx context.Context) ([]byte, error) {
	records, err := s.history.All(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeHistory(records)
}

func (s *service) ImportHistory(ctx context.Context, data []byte, mode HistoryImportMode) (int, error) {
	guard := s.guards[domain.DataClassHistory]
	if !guard.sem.TryAcquire(1) {
		return 0, ErrAlreadyRunning
	}
	defer guard.sem.Release(1)

	records, err := DecodeHistory(data)
	if err != nil {
		return 0, err
	}
	records = AssignIDs(records)

	switch mode {
	case HistoryImportMerge:
		return s.history.ImportMerge(ctx, records)
	case HistoryImportReplace:
		if err := s.history.ImportReplace(ctx, records); err != nil {
			return 0, err
		}
		return len(records), nil
	default:
		return 0, domain.NewSyncError(domain.ErrorClassFormat, "unknown-strategy",
			errors.Errorf("unknown history import mode %q", mode))
	}
}
