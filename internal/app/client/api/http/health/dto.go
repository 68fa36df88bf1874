package health

import "bizsync/internal/domain/sync"

type Input struct{}

type Output struct {
	Body Response
}

type Response struct {
	Status     string               `json:"status" example:"OK" doc:"Health status of the agent"`
	SyncState  sync.State           `json:"sync_state" doc:"Current sync manager state"`
	Connection sync.ConnectionState `json:"connection" doc:"Last observed connectivity to the remote backend"`
}
