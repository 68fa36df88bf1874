// Package api локальный API управления агентом.
//
//	GET    /api/v1/health                              # состояние агента (публичный)
//	GET    /api/v1/session                             # активный пользователь (auth)
//	GET    /api/v1/audit                               # журнал аудита (auth)
//	POST   /api/v1/sync                                # полный проход (auth)
//	POST   /api/v1/sync/partial                        # частичная загрузка (auth)
//	GET    /api/v1/sync/stats                          # статистика (auth)
//	PUT    /api/v1/sync/auto                           # автосинхронизация вкл/выкл (auth)
//	POST   /api/v1/sync/conflicts/{table}/{id}         # ручное разрешение конфликта (auth)
//	GET    /api/v1/queue                               # операции очереди (auth)
//	DELETE /api/v1/queue                               # очистка завершенных (auth)
//	PUT    /api/v1/records/{table}/{id}                # запись (auth)
//	GET    /api/v1/records/{table}[/{id}]              # чтение (auth)
//	DELETE /api/v1/records/{table}/{id}                # мягкое удаление (auth)
//	GET    /api/v1/users/{user_id}/quota               # квота (auth)
//	POST   /api/v1/users/{user_id}/quota/reservations  # резерв (auth)
//	POST   /api/v1/users/{user_id}/quota/reconcile     # сверка с сервером (auth)
//	POST   /api/v1/quotas/{quota_id}/commit            # расход по старейшему резерву (auth)
//	POST   /api/v1/reservations/{id}/commit            # расход по резерву (auth)
//	POST   /api/v1/reservations/{id}/cancel            # отмена резерва (auth)
package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"bizsync/internal/app/client"
	healthAPI "bizsync/internal/app/client/api/http/health"
	"bizsync/internal/app/client/api/http/middleware"
	"bizsync/internal/app/client/api/http/middleware/auth"
	"bizsync/internal/app/client/api/http/middleware/logger"
	queueAPI "bizsync/internal/app/client/api/http/queue"
	quotaAPI "bizsync/internal/app/client/api/http/quota"
	recordAPI "bizsync/internal/app/client/api/http/record"
	securityAPI "bizsync/internal/app/client/api/http/security"
	syncAPI "bizsync/internal/app/client/api/http/sync"
)

type Handlers struct {
	Health   *healthAPI.Handler
	Security *securityAPI.Handler
	Sync     *syncAPI.Handler
	Queue    *queueAPI.Handler
	Record   *recordAPI.Handler
	Quota    *quotaAPI.Handler
}

// New создает *chi.Mux со всеми операциями API управления
func New(app *client.App, log *slog.Logger) *chi.Mux {
	mux, _ := NewAPI(app, log)
	return mux
}

// NewAPI то же, что New, но отдает и huma.API, например для тестов
func NewAPI(app *client.App, log *slog.Logger) (*chi.Mux, huma.API) {
	mux := chi.NewMux()

	config := huma.DefaultConfig("bizsync control API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	api := humachi.New(mux, config)

	h := handlers(app, log)
	h.Health.SetupRoutes(api)
	h.Security.SetupRoutes(api)
	h.Sync.SetupRoutes(api)
	h.Queue.SetupRoutes(api)
	h.Record.SetupRoutes(api)
	h.Quota.SetupRoutes(api)

	return mux, api
}

func handlers(app *client.App, log *slog.Logger) *Handlers {
	authMW := auth.New(app.Tenant, log)
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	private := func() huma.Middlewares {
		return middlewares.Add(loggerMW.Middleware()).Add(authMW.Middleware()).GetAllAndClear()
	}

	return &Handlers{
		Health:   healthAPI.NewHandler(app.Sync, app.Conn, log, middlewares.Add(loggerMW.Middleware()).GetAllAndClear()),
		Security: securityAPI.NewHandler(app.Tenant, log, private()),
		Sync:     syncAPI.NewHandler(app.Sync, app, log, private()),
		Queue:    queueAPI.NewHandler(app.Queue, app.Clock(), log, private()),
		Record:   recordAPI.NewHandler(app.Records, log, private()),
		Quota:    quotaAPI.NewHandler(app.Quota, log, private()),
	}
}
