package cerrors

import "github.com/palantir/stacktrace"

type ErrorType string

const (
	ErrorTypeNonUserFriendly   ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric           ErrorType = "GENERIC_ERROR"
	ErrorTypeConfiguration     ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeTargetUnreachable ErrorType = "TARGET_UNREACHABLE_ERROR"
	ErrorTypeInjectionFailure  ErrorType = "INJECTION_FAILURE_ERROR"
	ErrorTypeValidation        ErrorType = "VALIDATION_ERROR"
	ErrorTypeSLOViolation      ErrorType = "SLO_VIOLATION"
	ErrorTypeGuardrail         ErrorType = "GUARDRAIL_ABORT"
	ErrorTypeTimeout           ErrorType = "TIMEOUT"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present in the failstep
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

func GetRootCauseAndErrorCode(err error, phase string) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	if error, ok := rootCause.(Error); ok {
		if error.Phase == "" {
			error.Phase = phase
		}
		return error.Error(), errorType
	}
	return rootCause.Error(), errorType
}
