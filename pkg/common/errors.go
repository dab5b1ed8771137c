package common

import (
	"errors"
	"fmt"
)

// BaseError defines the common error reporting struct for all other errors
// defined in this package.
type BaseError struct {
	message string
	cause   error
}

// Error implements the Error interface for all structures that are derived
// from this one.
func (in BaseError) Error() string {
	if in.cause != nil {
		return fmt.Sprintf("%s: %s", in.message, in.cause)
	}
	return in.message
}

// Unwrap returns the underlying error, if any.
func (in BaseError) Unwrap() error {
	return in.cause
}

// ErrMalformedConfig is returned when a configuration string violates its
// token grammar: a missing separator, an invalid enum value or a non-numeric
// entry. Re-running never fixes it so it is surfaced to the operator as is.
type ErrMalformedConfig struct {
	BaseError
	Key string
}

// ErrDeviceResolutionMiss records that a configured MAC or interface could
// not be matched against the host inventory. It is never fatal; callers log
// it and drop the mapping.
type ErrDeviceResolutionMiss struct {
	BaseError
	Token string
}

// ErrMutualExclusionConflict is reported when DPDK and hardware offload are
// both requested.
type ErrMutualExclusionConflict struct {
	BaseError
}

// ErrExternalCallFailure wraps a failed OVS, netlink, sysfs or service
// manager call.
type ErrExternalCallFailure struct {
	BaseError
	Step string
}

// NewMalformedConfig defines a constructor for the ErrMalformedConfig error
// type.
func NewMalformedConfig(key, format string, args ...interface{}) error {
	msg := fmt.Sprintf("invalid %s: %s", key, fmt.Sprintf(format, args...))
	return ErrMalformedConfig{BaseError: BaseError{message: msg}, Key: key}
}

// NewDeviceResolutionMiss defines a constructor for the
// ErrDeviceResolutionMiss error type.
func NewDeviceResolutionMiss(token string) error {
	msg := fmt.Sprintf("no host device found for %q", token)
	return ErrDeviceResolutionMiss{BaseError: BaseError{message: msg}, Token: token}
}

// NewMutualExclusionConflict defines a constructor for the
// ErrMutualExclusionConflict error type.
func NewMutualExclusionConflict(msg string) error {
	return ErrMutualExclusionConflict{BaseError{message: msg}}
}

// NewExternalCallFailure defines a constructor for the ErrExternalCallFailure
// error type. The step names what was being done and the identifier.
func NewExternalCallFailure(cause error, step string, args ...interface{}) error {
	if len(args) > 0 {
		step = fmt.Sprintf(step, args...)
	}
	return ErrExternalCallFailure{BaseError: BaseError{message: step, cause: cause}, Step: step}
}

// IsMalformedConfig reports whether err is or wraps an ErrMalformedConfig.
func IsMalformedConfig(err error) bool {
	var target ErrMalformedConfig
	return errors.As(err, &target)
}

// IsDeviceResolutionMiss reports whether err is or wraps an
// ErrDeviceResolutionMiss.
func IsDeviceResolutionMiss(err error) bool {
	var target ErrDeviceResolutionMiss
	return errors.As(err, &target)
}

// IsExternalCallFailure reports whether err is or wraps an
// ErrExternalCallFailure.
func IsExternalCallFailure(err error) bool {
	var target ErrExternalCallFailure
	return errors.As(err, &target)
}
