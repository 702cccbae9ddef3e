package config

import (
	"fmt"

	"github.com/pkg/errors"
)

type fieldRequiredError struct {
	path  string
	field string
}

func (e *fieldRequiredError) Error() string {
	return fmt.Sprintf("%s: %q is required", e.path, e.field)
}

// NewFieldRequiredError returns an error for a config value that must be present.
func NewFieldRequiredError(path, field string) error {
	return errors.WithStack(&fieldRequiredError{path: path, field: field})
}

// GetFieldFromFieldRequiredError returns the missing field of an error made by
// NewFieldRequiredError, or the empty string for any other error.
func GetFieldFromFieldRequiredError(err error) string {
	var fieldErr *fieldRequiredError
	if errors.As(err, &fieldErr) {
		return fieldErr.field
	}
	return ""
}
