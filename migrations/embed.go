package migrations

import "embed"

// Local схема локального хранилища устройства
//
//go:embed local/*.sql
var Local embed.FS

// Remote схема удаленного бэкенда: таблицы записей и функция check_quota_usage
//
//go:embed remote/*.sql
var Remote embed.FS

const (
	LocalDir  = "local"
	RemoteDir = "remote"
)
