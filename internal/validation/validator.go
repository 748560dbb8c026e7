// Package validation provides struct validation backed by
// go-playground/validator with one process-wide, concurrency-safe instance.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// Get returns the shared validator. Struct metadata is cached inside the
// instance, so one validator serves the whole process.
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates v and normalizes field failures into ErrInvalid so
// callers can test with errors.Is.
func Struct(v any) error {
	err := Get().Struct(v)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		parts := make([]string, 0, len(fields))
		for _, fe := range fields {
			if fe.Param() != "" {
				parts = append(parts, fmt.Sprintf("%s violates %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				parts = append(parts, fmt.Sprintf("%s violates %s", fe.Field(), fe.Tag()))
			}
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(parts, "; "))
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}
