// Package validation provides common validation utilities for configuration
// parameters and quantities across the milkflow module.
//
// Every helper returns a *errors.ValidationError so callers can surface a
// consistent message (module, field, value, reason and hint) from bucket
// constructors, refill schedules and the service configuration.
package validation
