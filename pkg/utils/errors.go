package utils

import "fmt"

// Wrap adds context to an error, returning nil if err is nil. pkg/config
// uses it to add context to viper load failures.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
