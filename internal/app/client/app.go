package client

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"

	"bizsync/internal/config"
	"bizsync/internal/domain/asset"
	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/quota"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
	"bizsync/internal/domain/tenant"
	"bizsync/internal/infrastructure/storage/postgres"
	"bizsync/internal/infrastructure/storage/sqlite"
	"bizsync/internal/utils/timeutil"
)

// stateSessionToken ключ device_state, под которым хранится токен сессии устройства
const stateSessionToken = "session_token"

// App собирает локальное хранилище, удаленный бэкенд и сервисы движка в один процесс
type App struct {
	cfg   *config.Config
	log   *slog.Logger
	clock timeutil.Clock

	store  *sqlite.Storage
	remote *postgres.Storage

	records  *sqlite.RecordRepository
	state    *sqlite.StateRepository
	validate *record.Validator

	Queue    *queue.Service
	Tenant   *tenant.Service
	Quota    *quota.Service
	Assets   *asset.Cache
	Conn     *sync.ConnectionMonitor
	Activity *sync.ActivityMonitor
	Sync     *sync.Manager
	Records  *RecordService

	mu     gosync.Mutex
	closed bool
	runCtx context.Context
}

// Option настройка App при создании
type Option func(*options)

type options struct {
	clock  timeutil.Clock
	remote sync.Remote
}

// WithClock подменяет часы, используется в тестах
func WithClock(c timeutil.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRemote подменяет удаленный бэкенд, используется в тестах
func WithRemote(r sync.Remote) Option {
	return func(o *options) { o.remote = r }
}

// remoteBackend все, что движок берет у удаленного бэкенда
type remoteBackend interface {
	sync.Remote
	tenant.ProfileFetcher
	quota.Remote
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	o := options{clock: timeutil.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := sqlite.New(cfg.Store.Path, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации локального хранилища: %w", err)
	}

	app := &App{
		cfg:      cfg,
		log:      log.With("component", "app"),
		clock:    o.clock,
		store:    store,
		records:  sqlite.NewRecordRepository(store, log),
		state:    sqlite.NewStateRepository(store),
		validate: record.NewValidator(),
	}

	var backend sync.Remote = offlineRemote{}
	switch {
	case o.remote != nil:
		backend = o.remote
	case cfg.Remote.DatabaseURI != "":
		pg, err := postgres.New(ctx, cfg.Remote.DatabaseURI, log)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ошибка инициализации удаленного бэкенда: %w", err)
		}
		app.remote = pg
		backend = postgres.NewRemote(pg, log)
	default:
		app.log.Warn("Remote backend is not configured, running offline only")
	}

	queueRepo := sqlite.NewQueueRepository(store, log)
	cursors := sqlite.NewCursorRepository(store)
	reservations := sqlite.NewQuotaRepository(store, log)
	cacheRepo := sqlite.NewAssetCacheRepository(store)

	app.Queue = queue.NewService(queueRepo, store, o.clock, log)

	tdeps := tenant.Deps{
		Sessions: sqlite.NewSessionRepository(store, log),
		Audit:    sqlite.NewAuditRepository(store),
		Purgers: []tenant.Purger{
			app.records,
			tenant.PurgerFunc(queueRepo.DeleteTenant),
			tenant.PurgerFunc(reservations.DeleteTenant),
			tenant.PurgerFunc(cacheRepo.DeleteTenant),
			tenant.PurgerFunc(cursors.DeleteTenant),
		},
		Clock: o.clock,
		Log:   log,
	}
	var qremote quota.Remote
	if rb, ok := backend.(remoteBackend); ok {
		tdeps.Profiles = rb
		qremote = rb
	}
	app.Tenant = tenant.NewService(tdeps).WithSessionTTL(cfg.Session.TTL)

	app.Quota = quota.NewService(quota.Deps{
		Reservations: reservations,
		Records:      app.records,
		Queue:        app.Queue,
		Remote:       qremote,
		Tenant:       app.Tenant,
		Tx:           store,
		Clock:        o.clock,
		Log:          log,
	}, cfg.Quota.ReservationTTL)

	app.Assets = asset.NewCache(cacheRepo, cfg.Cache.BudgetBytes, o.clock, log)
	app.Conn = sync.NewConnectionMonitor(backend, cfg.Sync.ProbeTimeout, o.clock, log)
	app.Activity = sync.NewActivityMonitor(cfg.Sync.ActiveWindow, cfg.Sync.IdleThreshold, o.clock)

	scfg, err := ConfigFrom(cfg.Sync)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Sync = sync.NewManager(scfg, sync.Deps{
		Queue:      app.Queue,
		Records:    app.records,
		Cursors:    cursors,
		Tx:         store,
		Remote:     backend,
		Tenant:     app.Tenant,
		Connection: app.Conn,
		Activity:   app.Activity,
		Clock:      o.clock,
		Log:        log,
	})

	app.Records = &RecordService{
		records:  app.records,
		queue:    app.Queue,
		tenant:   app.Tenant,
		assets:   app.Assets,
		sync:     app.Sync,
		tx:       store,
		validate: app.validate,
		clock:    o.clock,
		log:      log.With("component", "records"),
	}

	if _, err := app.Queue.RecoverInFlight(ctx); err != nil {
		app.log.Error("Failed to recover in-flight operations", "error", err)
	}

	return app, nil
}

// ConfigFrom переводит секцию конфигурации в параметры менеджера синхронизации
func ConfigFrom(c config.Sync) (sync.Config, error) {
	strategy, err := conflict.ParseStrategy(c.ConflictStrategy)
	if err != nil {
		return sync.Config{}, fmt.Errorf("sync.conflict_strategy: %w", err)
	}

	limits := make(map[record.Table]int, len(c.PartialLimits))
	for name, n := range c.PartialLimits {
		t, err := record.ParseTable(name)
		if err != nil {
			return sync.Config{}, fmt.Errorf("sync.partial_limits: %w", err)
		}
		limits[t] = n
	}

	return sync.Config{
		AutoSync:           c.AutoSync,
		Interval:           c.Interval,
		ActiveMultiplier:   c.ActiveMultiplier,
		BackgroundInterval: c.BackgroundInterval,
		BatchSize:          c.BatchSize,
		MaxRetries:         c.MaxRetries,
		Backoff: sync.Backoff{
			Base:       c.BackoffBase,
			Multiplier: c.BackoffMultiplier,
			Max:        c.BackoffMax,
		},
		ReconnectMax:           c.ReconnectMax,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		Strategy:               strategy,
		PullPageSize:           c.PullPageSize,
		PushConcurrency:        c.PushConcurrency,
		MinTriggerInterval:     c.MinTriggerInterval,
		PartialLimits:          limits,
	}, nil
}

// MigrateRemote применяет миграции удаленной схемы
func (a *App) MigrateRemote() error {
	if a.remote == nil {
		return ErrRemoteNotConfigured
	}
	return a.remote.Migrate(a.cfg.Remote.Migrations)
}

// Close останавливает менеджер и закрывает хранилища
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	if a.Sync != nil {
		a.Sync.Close()
	}

	var errs []error
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// CheckConnection проверяет соединение с удаленным бэкендом
func (a *App) CheckConnection(ctx context.Context) sync.ConnectionState {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return a.Conn.Check(ctx)
}

// Clock часы приложения
func (a *App) Clock() timeutil.Clock {
	return a.clock
}

// SetAutoSync включает или выключает автосинхронизацию на время работы агента
func (a *App) SetAutoSync(enabled bool) {
	if !enabled {
		a.Sync.StopAutoSync()
		return
	}

	a.mu.Lock()
	ctx := a.runCtx
	a.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	a.Sync.StartAutoSync(ctx)
}
