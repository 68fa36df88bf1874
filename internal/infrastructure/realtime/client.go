package realtime

import (
	"context"
	"fmt"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"

	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
)

// Типы кадров канала изменений
const (
	TypeChange    = "change"
	TypeSubscribe = "subscribe"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// Envelope кадр канала изменений
type Envelope struct {
	Type      string `json:"type"`
	Data      Change `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Change строка, измененная на сервере
type Change struct {
	Table    record.Table `json:"table"`
	TenantID string       `json:"tenant_id"`
	ID       string       `json:"id"`
}

// Subscription кадр подписки на изменения одной таблицы арендатора
type Subscription struct {
	Type     string       `json:"type"`
	Table    record.Table `json:"table"`
	TenantID string       `json:"tenant_id,omitempty"`
}

// Syncer запускает фоновый проход синхронизации
type Syncer interface {
	BackgroundSync(ctx context.Context)
}

// TenantSource арендатор активного пользователя; пустая строка если его нет
type TenantSource interface {
	TenantID() string
}

// Client подписка на канал изменений удаленного бэкенда.
// Каждое изменение своего арендатора запускает фоновую синхронизацию, не чаще одного раза в minGap.
// Изменения, пришедшие в паузе, схлопываются в один отложенный проход после нее.
type Client struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	syncer  Syncer
	tenant  TenantSource
	backoff sync.Backoff
	limiter *rate.Limiter
	log     *slog.Logger

	mu       stdsync.Mutex
	trailing *time.Timer
}

// NewClient создает подписчика
func NewClient(url string, header http.Header, syncer Syncer, tenant TenantSource, backoff sync.Backoff, minGap time.Duration, log *slog.Logger) *Client {
	limit := rate.Inf
	if minGap > 0 {
		limit = rate.Every(minGap)
	}
	return &Client{
		url:     url,
		header:  header,
		dialer:  websocket.DefaultDialer,
		syncer:  syncer,
		tenant:  tenant,
		backoff: backoff,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With("component", "realtime"),
	}
}

// Run держит подписку до отмены ctx, переподключаясь с экспоненциальной задержкой
func (c *Client) Run(ctx context.Context) {
	defer c.stopDeferred()

	attempt := 0
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := c.backoff.Delay(attempt)
			attempt++
			c.log.Warn("Failed to connect to change feed", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		c.log.Info("Change feed connected", "url", c.url)
		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("Change feed disconnected", "error", err)
	}
}

// subscribe подписывается на все синхронизируемые таблицы текущего арендатора
func (c *Client) subscribe(conn *websocket.Conn) error {
	tenantID := c.tenant.TenantID()
	for _, table := range record.SyncableTables() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(Subscription{Type: TypeSubscribe, Table: table, TenantID: tenantID}); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", table, err)
		}
	}
	return nil
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	if err := c.subscribe(conn); err != nil {
		_ = conn.Close()
		return err
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				_ = conn.Close()
				return
			case <-done:
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Envelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg Envelope) {
	if msg.Type != TypeChange {
		return
	}
	if err := msg.Data.Table.Validate(); err != nil {
		c.log.Debug("Change for unknown table ignored", "table", msg.Data.Table)
		return
	}

	tenantID := c.tenant.TenantID()
	if tenantID == "" || msg.Data.TenantID != tenantID {
		return
	}
	if !c.limiter.Allow() {
		c.deferSync(ctx)
		return
	}

	c.log.Debug("Remote change received", "table", msg.Data.Table, "id", msg.Data.ID)
	c.syncer.BackgroundSync(ctx)
}

// deferSync планирует один проход на момент, когда лимитер снова его разрешит
func (c *Client) deferSync(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trailing != nil {
		return
	}

	delay := c.limiter.Reserve().Delay()
	c.trailing = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.trailing = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		c.log.Debug("Deferred sync after throttled changes")
		c.syncer.BackgroundSync(ctx)
	})
}

// stopDeferred отменяет отложенный проход при остановке подписки
func (c *Client) stopDeferred() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trailing != nil {
		c.trailing.Stop()
		c.trailing = nil
	}
}
