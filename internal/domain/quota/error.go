package quota

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaNotFound        = errors.New("quota not found")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationExpired   = errors.New("reservation expired")
	ErrNotPending           = errors.New("reservation is not pending")
	ErrExceedsReservation   = errors.New("amount used exceeds reserved amount")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientCapacity = errors.New("insufficient quota")
)

// ShortfallError нехватка лимита при резервировании
type ShortfallError struct {
	Requested int64
	Available int64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient quota: requested %d, available %d", e.Requested, e.Available)
}

func (e *ShortfallError) Unwrap() error {
	return ErrInsufficientCapacity
}

// Shortfall недостающий объем
func (e *ShortfallError) Shortfall() int64 {
	return e.Requested - e.Available
}
