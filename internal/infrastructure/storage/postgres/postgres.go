package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"bizsync/internal/infrastructure/migration"
	"bizsync/migrations"
)

type Storage struct {
	pool *pgxpool.Pool
	uri  string
	log  *slog.Logger
}

// New создает пул соединений с удаленным бэкендом. Пул ленивый: без сети
// ошибка появится только при первом запросе, поэтому офлайн-запуск не блокируется.
func New(ctx context.Context, databaseURI string, log *slog.Logger) (*Storage, error) {
	pool, err := pgxpool.New(ctx, databaseURI)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &Storage{pool: pool, uri: databaseURI, log: log.With("component", "postgres")}, nil
}

// Migrate применяет миграции удаленной схемы. Пустой migrationsDir означает встроенные миграции.
func (s *Storage) Migrate(migrationsDir string) error {
	mg := migration.FromDir(migrationsDir, s.uri)
	if migrationsDir == "" {
		mg = migration.NewMigration("", s.uri, migration.EmbeddedEngine(migrations.Remote, migrations.RemoteDir))
	}
	if err := mg.Up(); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	s.log.Info("Remote schema migrated", "source", migrationsDir)
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}
