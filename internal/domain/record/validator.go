package record

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator проверяет записи перед постановкой в очередь
type Validator struct {
	v *validator.Validate
}

// NewValidator создает валидатор, который называет поля так же, как JSON
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{v: v}
}

// Validate проверяет структуру записи
func (val *Validator) Validate(r Record) error {
	if err := r.Table().Validate(); err != nil {
		return err
	}

	if err := val.v.Struct(r); err != nil {
		return &ValidationError{
			Table:  r.Table(),
			ID:     r.RecordID(),
			Fields: fieldErrors(err),
			Err:    err,
		}
	}

	if p, ok := r.(*Payment); ok && p.Amount.IsNegative() {
		return &ValidationError{
			Table:  r.Table(),
			ID:     r.RecordID(),
			Fields: map[string]string{"amount": "gte"},
		}
	}

	return nil
}

// ValidateEntry декодирует и проверяет хранимую форму
func (val *Validator) ValidateEntry(e Entry) (Record, error) {
	r, err := Decode(e)
	if err != nil {
		return nil, err
	}
	if err := val.Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}
