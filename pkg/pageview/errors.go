package pageview

import "errors"

var (
	// ErrConfig reports a missing or unusable construction option.
	ErrConfig = errors.New("invalid pageview service configuration")
	// ErrInvalidArgument reports a bad day count or metric.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidResponse reports a failed or malformed reporting API call.
	ErrInvalidResponse = errors.New("invalid response from analytics API")
)
