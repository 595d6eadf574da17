package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"
	"github.com/joeyliu6/weibodr-sync/internal/profile"
	syncer "github.com/joeyliu6/weibodr-sync/internal/sync"

	"github.com/asaskevich/EventBus"
	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Interval bounds. The API accepts minutes or hours; everything is normalized
// to minutes internally.
const (
	MinIntervalMinutes = 5
	MaxIntervalMinutes = 1440
	MinIntervalHours   = 1
	MaxIntervalHours   = 720

	defaultIntervalMinutes = 60
	autoSyncJobID          = "auto-sync"
)

// ClampMinutes bounds an interval given in minutes.
func ClampMinutes(minutes int) int {
	if minutes < MinIntervalMinutes {
		return MinIntervalMinutes
	}
	if minutes > MaxIntervalMinutes {
		return MaxIntervalMinutes
	}
	return minutes
}

// HoursToMinutes bounds an interval given in hours and normalizes it. The
// hour surface has its own range, so the result is not re-clamped against
// the minute bounds.
func HoursToMinutes(hours int) int {
	if hours < MinIntervalHours {
		hours = MinIntervalHours
	}
	if hours > MaxIntervalHours {
		hours = MaxIntervalHours
	}
	return hours * 60
}

type Service interface {
	Start()
	Stop()
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	// SetInterval changes the recurring interval, clamped to [5, 1440]
	// minutes. When the scheduler is enabled the timer is reset with the
	// new period rather than resumed mid-cycle.
	SetInterval(ctx context.Context, minutes int) error
	// SetIntervalHours is the hour-denominated surface with its own
	// bounds, [1, 720].
	SetIntervalHours(ctx context.Context, hours int) error
	// SyncNow triggers the bundled sync immediately, under the same
	// single-flight discipline as a timer fire.
	SyncNow(ctx context.Context) (*domain.SyncStatusRecord, error)
	State(ctx context.Context) (*domain.AutoSyncState, error)
}

type service struct {
	log      zerolog.Logger
	syncSvc  syncer.Service
	profiles profile.Service
	settings domain.SettingsRepo
	ledger   domain.SyncStatusRepo
	bus      EventBus.Bus

	cron *cron.Cron
	jobs map[string]cron.EntryID
	m    sync.RWMutex
}

func NewService(log logger.Logger, bus EventBus.Bus, syncSvc syncer.Service, profiles profile.Service, settings domain.SettingsRepo, ledger domain.SyncStatusRepo) Service {
	s := &service{
		log:      log.With().Str("module", "scheduler").Logger(),
		syncSvc:  syncSvc,
		profiles: profiles,
		settings: settings,
		ledger:   ledger,
		bus:      bus,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		)),
		jobs: map[string]cron.EntryID{},
	}

	// a config download or import can rewrite the stored scheduler settings
	// behind the running timer's back
	if err := bus.Subscribe(domain.EventSettingsChanged, s.onSettingsChanged); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventSettingsChanged).Msg("could not subscribe")
	}

	return s
}

// onSettingsChanged re-arms or cancels the timer so the persisted settings
// and the running schedule never drift apart until a restart.
func (s *service) onSettingsChanged(settings domain.AutoSyncSettings) {
	if settings.IntervalMinutes == 0 {
		settings.IntervalMinutes = defaultIntervalMinutes
	}

	if !settings.Enabled {
		s.removeJob(autoSyncJobID)
		s.log.Info().Msg("auto sync disabled by settings change")
		return
	}

	s.schedule(settings.IntervalMinutes)
	s.log.Info().Int("intervalMinutes", settings.IntervalMinutes).Msg("auto sync rescheduled by settings change")
}

func (s *service) Start() {
	s.log.Info().Msg("starting scheduler")
	s.cron.Start()

	stored, err := s.loadSettings(context.Background())
	if err != nil {
		s.log.Error().Err(err).Msg("could not load auto sync settings, scheduler stays idle")
		return
	}
	if stored.Enabled {
		s.schedule(stored.IntervalMinutes)
	}
}

func (s *service) Stop() {
	s.log.Info().Msg("stopping scheduler")
	s.cron.Stop()
}

func (s *service) Enable(ctx context.Context) error {
	stored, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}

	stored.Enabled = true
	if err := s.storeSettings(ctx, stored); err != nil {
		return err
	}

	s.schedule(stored.IntervalMinutes)
	s.log.Info().Int("intervalMinutes", stored.IntervalMinutes).Msg("auto sync enabled")
	return nil
}

func (s *service) Disable(ctx context.Context) error {
	stored, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}

	stored.Enabled = false
	if err := s.storeSettings(ctx, stored); err != nil {
		return err
	}

	s.removeJob(autoSyncJobID)
	s.log.Info().Msg("auto sync disabled")
	return nil
}

func (s *service) SetInterval(ctx context.Context, minutes int) error {
	clamped := ClampMinutes(minutes)
	if clamped != minutes {
		s.log.Warn().Int("requested", minutes).Int("clamped", clamped).Msg("auto sync interval out of bounds")
	}

	stored, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}

	stored.IntervalMinutes = clamped
	if err := s.storeSettings(ctx, stored); err != nil {
		return err
	}

	if stored.Enabled {
		s.schedule(clamped)
	}
	return nil
}

func (s *service) SetIntervalHours(ctx context.Context, hours int) error {
	minutes := HoursToMinutes(hours)

	stored, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}

	stored.IntervalMinutes = minutes
	if err := s.storeSettings(ctx, stored); err != nil {
		return err
	}

	if stored.Enabled {
		s.schedule(minutes)
	}
	return nil
}

func (s *service) SyncNow(ctx context.Context) (*domain.SyncStatusRecord, error) {
	return s.syncSvc.SyncAll(ctx)
}

func (s *service) State(ctx context.Context) (*domain.AutoSyncState, error) {
	stored, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	state := &domain.AutoSyncState{
		Enabled:         stored.Enabled,
		IntervalMinutes: stored.IntervalMinutes,
		LastResult:      domain.SyncResultNever,
		Running:         s.syncSvc.Running(domain.DataClassBundle),
	}

	last, err := s.ledger.Get(ctx, domain.DataClassBundle)
	if err != nil {
		return nil, err
	}
	if last.Result != domain.SyncResultNever {
		at := last.AttemptedAt
		state.LastRunAt = &at
		state.LastResult = last.Result
	}

	// advisory projection, recomputed on every read
	if next := s.nextRun(autoSyncJobID); !next.IsZero() {
		state.NextRunIn = humanize.Time(next)
	}
	return state, nil
}

// schedule (re)installs the recurring job with a fresh timer.
func (s *service) schedule(intervalMinutes int) {
	s.removeJob(autoSyncJobID)

	job := &autoSyncJob{
		Log:      s.log.With().Str("job", autoSyncJobID).Logger(),
		SyncSvc:  s.syncSvc,
		Profiles: s.profiles,
	}
	if _, err := s.addJob(job, time.Duration(intervalMinutes)*time.Minute, autoSyncJobID); err != nil {
		s.log.Error().Err(err).Msg("could not schedule auto sync job")
	}
}

func (s *service) addJob(job cron.Job, interval time.Duration, identifier string) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, exists := s.jobs[identifier]; exists {
		return 0, fmt.Errorf("job with identifier '%s' already exists", identifier)
	}

	entryID, err := s.cron.AddJob(fmt.Sprintf("@every %s", interval.String()), cron.NewChain(
		cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job))
	if err != nil {
		return 0, fmt.Errorf("failed to add job '%s': %w", identifier, err)
	}

	s.log.Debug().Str("identifier", identifier).Dur("interval", interval).Msg("scheduled job added")
	s.jobs[identifier] = entryID
	return int(entryID), nil
}

func (s *service) removeJob(identifier string) {
	s.m.Lock()
	defer s.m.Unlock()

	v, ok := s.jobs[identifier]
	if !ok {
		return
	}

	s.cron.Remove(v)
	delete(s.jobs, identifier)
}

func (s *service) nextRun(identifier string) time.Time {
	s.m.RLock()
	defer s.m.RUnlock()

	v, ok := s.jobs[identifier]
	if !ok {
		return time.Time{}
	}

	entry := s.cron.Entry(v)
	if !entry.Valid() {
		return time.Time{}
	}
	return entry.Next
}

func (s *service) loadSettings(ctx context.Context) (domain.AutoSyncSettings, error) {
	snap, err := s.settings.Get(ctx, domain.SettingsKeyApp)
	if err != nil {
		return domain.AutoSyncSettings{}, err
	}
	if snap == nil {
		return domain.AutoSyncSettings{IntervalMinutes: defaultIntervalMinutes}, nil
	}

	stored := snap.AutoSync
	if stored.IntervalMinutes == 0 {
		stored.IntervalMinutes = defaultIntervalMinutes
	}
	return stored, nil
}

// storeSettings writes the scheduler settings back into the app snapshot so
// they travel with a config backup.
func (s *service) storeSettings(ctx context.Context, settings domain.AutoSyncSettings) error {
	snap, err := s.settings.Get(ctx, domain.SettingsKeyApp)
	if err != nil {
		return err
	}
	if snap == nil {
		snap = &domain.ConfigSnapshot{}
	}

	snap.AutoSync = settings
	return s.settings.Set(ctx, domain.SettingsKeyApp, snap)
}
