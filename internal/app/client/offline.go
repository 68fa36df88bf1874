package client

import (
	"context"

	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
)

// offlineRemote заменяет удаленный бэкенд, когда он не настроен: любая операция недоступна
type offlineRemote struct{}

func (offlineRemote) Ping(context.Context) error {
	return sync.ErrRemoteUnavailable
}

func (offlineRemote) Select(context.Context, record.Table, string, sync.Cursor, int) ([]sync.RemoteRow, error) {
	return nil, sync.ErrRemoteUnavailable
}

func (offlineRemote) Get(context.Context, record.Table, string) (*sync.RemoteRow, error) {
	return nil, sync.ErrRemoteUnavailable
}

func (offlineRemote) Upsert(context.Context, record.Table, sync.RemoteRow, int64) error {
	return sync.ErrRemoteUnavailable
}

func (offlineRemote) Count(context.Context, record.Table, string) (int, error) {
	return 0, sync.ErrRemoteUnavailable
}
