// Package validate wraps go-playground/validator with the field rules shared by
// the booking and account services.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ErrInvalid is the category every validation failure unwraps to.
var ErrInvalid = errors.New("validation error")

// FieldError describes one rejected field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Error is returned for client-fixable input problems.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s failed %q", f.Field, f.Rule))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Field builds a single-field validation error.
func Field(field, rule string) error {
	return &Error{Fields: []FieldError{{Field: field, Rule: rule}}}
}

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			return IsDate(fl.Field().String())
		})
		_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			return IsTime(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// IsDate reports whether s is a calendar date in YYYY-MM-DD form.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// IsTime reports whether s is a wall-clock time in HH:MM form.
func IsTime(s string) bool {
	if len(s) != len(TimeLayout) {
		return false
	}
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}
