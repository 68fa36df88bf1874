package sync

// State состояние менеджера синхронизации
type State string

const (
	StateIdle         State = "idle"
	StateSyncing      State = "syncing"
	StateError        State = "error"
	StateOffline      State = "offline"
	StateReconnecting State = "reconnecting"
)

// Phase этап прохода синхронизации
type Phase string

const (
	PhasePush Phase = "push"
	PhasePull Phase = "pull"
)
