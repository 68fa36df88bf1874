package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"

	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
	"bizsync/internal/utils/timeutil"
)

// Deps зависимости менеджера синхронизации
type Deps struct {
	Queue      Queue
	Records    record.Repository
	Cursors    CursorRepository
	Tx         Transactor
	Remote     Remote
	Tenant     TenantGuard
	Connection *ConnectionMonitor
	Activity   *ActivityMonitor
	Clock      timeutil.Clock
	Log        *slog.Logger
}

// Manager оркестрирует push очереди и pull удаленных изменений, ведет состояние и расписание
type Manager struct {
	cfg      Config
	queue    Queue
	records  record.Repository
	cursors  CursorRepository
	tx       Transactor
	remote   Remote
	tenant   TenantGuard
	conn     *ConnectionMonitor
	activity *ActivityMonitor
	clock    timeutil.Clock
	log      *slog.Logger
	bus      *Bus
	limiter  *rate.Limiter

	// pass допускает только один проход одновременно
	pass stdsync.Mutex

	mu       stdsync.Mutex
	state    State
	stats    Stats
	failures int

	sched scheduler
	bg    stdsync.WaitGroup
}

// NewManager создает менеджер и подписывает его на изменения соединения
func NewManager(cfg Config, deps Deps) *Manager {
	cfg.applyDefaults()

	clock := deps.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	log := deps.Log.With("component", "sync_manager")

	limit := rate.Inf
	if cfg.MinTriggerInterval > 0 {
		limit = rate.Every(cfg.MinTriggerInterval)
	}

	m := &Manager{
		cfg:      cfg,
		queue:    deps.Queue,
		records:  deps.Records,
		cursors:  deps.Cursors,
		tx:       deps.Tx,
		remote:   deps.Remote,
		tenant:   deps.Tenant,
		conn:     deps.Connection,
		activity: deps.Activity,
		clock:    clock,
		log:      log,
		bus:      NewBus(log),
		limiter:  rate.NewLimiter(limit, 1),
		state:    StateIdle,
	}
	m.sched.resched = make(chan struct{}, 1)
	m.conn.OnChange(m.onConnectivity)

	return m
}

// Subscribe регистрирует обработчик событий и возвращает функцию отписки
func (m *Manager) Subscribe(l Listener) func() {
	return m.bus.Subscribe(l)
}

// State текущее состояние менеджера
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	m.mu.Unlock()

	m.log.Info("Sync state changed", "from", prev, "to", next)
	m.bus.Publish(Event{Type: EventStatusChange, At: m.clock.Now(), From: prev, To: next})
}

// TriggerSync запускает полный проход по явному запросу.
// Без соединения или без арендатора сразу возвращает ошибку и переводит менеджер в offline.
func (m *Manager) TriggerSync(ctx context.Context) (*Result, error) {
	return m.trigger(ctx, true)
}

func (m *Manager) trigger(ctx context.Context, explicit bool) (*Result, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if explicit && !m.limiter.Allow() {
		return nil, ErrThrottled
	}
	return m.Sync(ctx)
}

func (m *Manager) ready() error {
	if !m.conn.State().IsOnline {
		if m.State() != StateSyncing {
			m.setState(StateOffline)
		}
		return ErrOffline
	}
	if _, ok := m.tenant.CurrentUser(); !ok {
		if m.State() != StateSyncing {
			m.setState(StateOffline)
		}
		return ErrNoTenant
	}
	return nil
}

// Sync выполняет один полный проход: отправка очереди, затем pull всех синхронизируемых таблиц.
// Пока идет проход, повторный вызов возвращает ErrSyncInProgress.
func (m *Manager) Sync(ctx context.Context) (*Result, error) {
	if !m.pass.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer m.pass.Unlock()

	user, ok := m.tenant.CurrentUser()
	if !ok {
		return nil, ErrNoTenant
	}

	m.cancelReconnect()
	res := m.begin(false)

	err := m.push(ctx, res)
	if err == nil {
		err = m.pull(ctx, user.TenantID, nil, res)
	}

	return m.finish(res, err)
}

func (m *Manager) begin(partial bool) *Result {
	res := &Result{StartTime: m.clock.Now(), Partial: partial}
	m.setState(StateSyncing)
	m.bus.Publish(Event{Type: EventSyncStart, At: res.StartTime})
	m.log.Info("Sync started", "partial", partial)
	return res
}

func (m *Manager) finish(res *Result, err error) (*Result, error) {
	res.EndTime = m.clock.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.Success = err == nil

	m.mu.Lock()
	m.stats.record(res, err == nil)
	if err != nil {
		m.stats.LastError = err.Error()
	} else {
		m.failures = 0
		m.stats.LastError = ""
	}
	m.mu.Unlock()

	if err == nil {
		m.log.Info("Sync completed",
			"pushed", res.Pushed, "failed", res.Failed, "pulled", res.Pulled,
			"conflicts", res.Conflicts, "duration", res.Duration)
		if m.conn.State().IsOnline {
			m.setState(StateIdle)
		} else {
			m.setState(StateOffline)
		}
		m.bus.Publish(Event{Type: EventSyncComplete, At: res.EndTime, Result: res})
		return res, nil
	}

	m.log.Error("Sync failed", "error", err, "recoverable", IsRecoverable(err))
	m.bus.Publish(Event{Type: EventSyncError, At: res.EndTime, Result: res, Error: err.Error()})
	m.handleFailure(err)

	return res, err
}

// handleFailure переводит менеджер в reconnecting с backoff для сетевых ошибок
// и в error для остальных или после серии неудач подряд
func (m *Manager) handleFailure(err error) {
	m.mu.Lock()
	m.failures++
	n := m.failures
	m.mu.Unlock()

	if !IsRecoverable(err) {
		m.setState(StateError)
		return
	}

	if n >= m.cfg.MaxConsecutiveFailures {
		m.setState(StateError)
		m.bus.Publish(Event{
			Type:    EventUserNotification,
			At:      m.clock.Now(),
			Message: fmt.Sprintf("Synchronization failed %d times in a row and was paused. Trigger it manually to retry.", n),
		})
		return
	}

	delay := Backoff{
		Base:       m.cfg.Backoff.Base,
		Multiplier: m.cfg.Backoff.Multiplier,
		Max:        m.cfg.ReconnectMax,
	}.Delay(n - 1)

	m.setState(StateReconnecting)
	m.scheduleReconnect(delay)
}

// AddToSyncQueue ставит изменение в очередь отправки
func (m *Manager) AddToSyncQueue(ctx context.Context, table record.Table, kind queue.Kind, recordID string, payload []byte, priority queue.Priority) (string, error) {
	return m.queue.Enqueue(ctx, table, kind, recordID, payload, priority)
}

// GetSyncStats возвращает накопленную статистику вместе с состоянием очереди и соединения
func (m *Manager) GetSyncStats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	stats := m.stats
	stats.State = m.state
	stats.ConsecutiveFailures = m.failures
	m.mu.Unlock()

	stats.Interval = m.currentInterval()
	stats.Activity = m.activity.Level()
	stats.Connection = m.conn.State()

	qs, err := m.queue.Stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get queue stats: %w", err)
	}
	stats.Queue = qs

	return stats, nil
}

// RecordActivity отмечает действие пользователя и пересчитывает период автосинхронизации
func (m *Manager) RecordActivity() {
	m.activity.RecordActivity()
	m.Reschedule()
}

// Close останавливает расписание и дожидается фоновых проходов
func (m *Manager) Close() {
	m.StopAutoSync()
	m.cancelReconnect()
	m.bg.Wait()
}

// Wait дожидается фоновых проходов
func (m *Manager) Wait() {
	m.bg.Wait()
}

func (m *Manager) onConnectivity(prev, next ConnectionState) {
	m.Reschedule()

	if prev.IsOnline == next.IsOnline {
		return
	}

	if !next.IsOnline {
		if m.State() != StateSyncing {
			m.setState(StateOffline)
		}
		return
	}

	if m.State() == StateOffline {
		m.setState(StateIdle)
	}

	if m.cfg.AutoSync && m.autoRunning() {
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			if _, err := m.trigger(context.Background(), false); err != nil && !errors.Is(err, ErrSyncInProgress) {
				m.log.Debug("Reconnect sync skipped", "error", err)
			}
		}()
	}
}
