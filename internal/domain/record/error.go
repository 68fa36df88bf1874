package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrUnknownTable  = errors.New("unknown table")
	ErrIDMismatch    = errors.New("record id does not match entry id")
)

// ValidationError описывает отклоненную запись и поля, не прошедшие проверку
type ValidationError struct {
	Table  Table
	ID     string
	Fields map[string]string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid %s record %s: %v", e.Table, e.ID, e.Err)
	}

	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+"="+tag)
	}
	return fmt.Sprintf("invalid %s record %s: %s", e.Table, e.ID, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidRecord, e.Err}
}

func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
