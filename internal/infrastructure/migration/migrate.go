package migration

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	// Драйверы баз и источников для migrate регистрируются пустым импортом
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrator интерфейс для самой библиотеки migrate.Migrate
type Migrator interface {
	Up() error
	Close() (error, error)
}

// MigrationEngine фабрика для создания мигратора (чтобы не лезть в ФС и БД в тестах)
type MigrationEngine func(sourceURL, databaseURL string) (Migrator, error)

type Migration struct {
	source   string
	database string
	engine   MigrationEngine
}

// NewMigration готовит миграцию базы databaseURL из источника sourceURL
func NewMigration(sourceURL, databaseURL string, engine MigrationEngine) *Migration {
	if engine == nil {
		engine = DefaultEngine
	}
	return &Migration{
		source:   sourceURL,
		database: databaseURL,
		engine:   engine,
	}
}

// FromDir миграция из каталога файловой системы
func FromDir(dir, databaseURL string) *Migration {
	return NewMigration("file://"+dir, databaseURL, DefaultEngine)
}

// DefaultEngine реальная реализация для продакшена
func DefaultEngine(sourceURL, databaseURL string) (Migrator, error) {
	return migrate.New(sourceURL, databaseURL)
}

// EmbeddedEngine читает миграции из встроенной файловой системы; sourceURL игнорируется
func EmbeddedEngine(fsys fs.FS, dir string) MigrationEngine {
	return func(_, databaseURL string) (Migrator, error) {
		src, err := iofs.New(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("open embedded migrations: %w", err)
		}
		return migrate.NewWithSourceInstance("iofs", src, databaseURL)
	}
}

func (mg *Migration) Up() (err error) {
	m, err := mg.engine(mg.source, mg.database)
	if err != nil {
		return err
	}
	defer func() {
		serr, dberr := m.Close()
		if serr != nil {
			if err != nil {
				err = fmt.Errorf("%w; migration source error: %v", err, serr)
			} else {
				err = serr
			}
		}
		if dberr != nil {
			if err != nil {
				err = fmt.Errorf("%w; migration database error: %v", err, dberr)
			} else {
				err = dberr
			}
		}
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w; migration up error", err)
	}
	return nil
}
