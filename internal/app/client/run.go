package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bizsync/internal/domain/sync"
	"bizsync/internal/infrastructure/realtime"
)

const (
	probeEvery       = 15 * time.Second
	maintenanceEvery = time.Minute
	shutdownTimeout  = 5 * time.Second
)

// Run работает как агент до сигнала остановки: проверяет соединение, синхронизирует
// по расписанию, слушает ленту изменений и обслуживает API управления, если handler задан
func (a *App) Run(ctx context.Context, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	g.Go(func() error {
		a.Conn.Run(ctx, probeEvery)
		return nil
	})
	g.Go(func() error {
		a.maintain(ctx, maintenanceEvery)
		return nil
	})

	if a.cfg.Sync.AutoSync {
		a.Sync.StartAutoSync(ctx)
	}

	if url := a.cfg.Remote.RealtimeURL; url != "" {
		feed := realtime.NewClient(url, nil, a.Sync, a.Tenant, sync.Backoff{
			Base:       a.cfg.Sync.BackoffBase,
			Multiplier: a.cfg.Sync.BackoffMultiplier,
			Max:        a.cfg.Sync.ReconnectMax,
		}, a.cfg.Sync.MinTriggerInterval, a.log)
		g.Go(func() error {
			feed.Run(ctx)
			return nil
		})
	}

	if handler != nil {
		srv := &http.Server{
			Addr:              a.cfg.API.Address,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("Control API listening", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shCtx)
		})
	}

	a.log.Info("Agent started", "env", a.cfg.Env, "auto_sync", a.cfg.Sync.AutoSync)

	err := g.Wait()
	a.Sync.StopAutoSync()
	a.Sync.Wait()

	a.log.Info("Agent stopped")
	return err
}

func (a *App) maintain(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Maintain(ctx)
		}
	}
}

// Maintain один проход обслуживания: хранение очереди, истекшие сессии и резервы, бюджет кэша
func (a *App) Maintain(ctx context.Context) {
	if _, err := a.Queue.Housekeep(ctx); err != nil {
		a.log.Error("Queue housekeeping failed", "error", err)
	}
	if _, err := a.Tenant.SweepExpiredSessions(ctx); err != nil {
		a.log.Error("Session sweep failed", "error", err)
	}
	if _, err := a.Quota.ExpireStale(ctx); err != nil {
		a.log.Error("Reservation expiry failed", "error", err)
	}
	if _, err := a.Assets.EvictToBudget(ctx); err != nil {
		a.log.Error("Asset cache eviction failed", "error", err)
	}
}
