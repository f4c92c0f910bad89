package config

import "fmt"

// ConfigurationError reports a malformed mode value, rule table or option.
// It is raised before any file is processed.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErr(field string, err error) error {
	return &ConfigurationError{Field: field, Err: err}
}
