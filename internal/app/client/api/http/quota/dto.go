package quota

import "bizsync/internal/domain/quota"

type showInput struct {
	UserID string `path:"user_id" format:"uuid"`
	Limit  int    `query:"limit" minimum:"0" maximum:"500" default:"20" doc:"How many recent reservations to include"`
}

type showOutput struct {
	Body ShowResponse
}

type ShowResponse struct {
	Usage        quota.Usage         `json:"usage"`
	Reservations []quota.Reservation `json:"reservations"`
}

type reserveInput struct {
	UserID string `path:"user_id" format:"uuid"`
	Body   ReserveRequest
}

type ReserveRequest struct {
	Amount int64 `json:"amount" minimum:"1"`
}

type reserveOutput struct {
	Body quota.ReserveResult
}

type reconcileInput struct {
	UserID string `path:"user_id" format:"uuid"`
}

type reconcileOutput struct {
	Body ReconcileResponse
}

type ReconcileResponse struct {
	Adopted bool `json:"adopted" doc:"False when a local quota change still awaits push"`
}

type commitQuotaInput struct {
	QuotaID string `path:"quota_id"`
	Body    CommitRequest
}

type commitReservationInput struct {
	ID   string `path:"id" format:"uuid"`
	Body CommitRequest
}

type CommitRequest struct {
	AmountUsed int64 `json:"amount_used" minimum:"0"`
}

type reservationOutput struct {
	Body *quota.Reservation
}

type cancelInput struct {
	ID string `path:"id" format:"uuid"`
}

type cancelOutput struct{}
