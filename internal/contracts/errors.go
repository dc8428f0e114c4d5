package contracts

import (
	"errors"
	"fmt"
)

// FatalCode classifies conditions that abort a run before any filesystem mutation.
type FatalCode string

const (
	FatalPolicyMissing        FatalCode = "POLICY_MISSING"
	FatalPolicyHashMismatch   FatalCode = "POLICY_HASH_MISMATCH"
	FatalPolicyInvalid        FatalCode = "POLICY_INVALID"
	FatalUniverseMissing      FatalCode = "UNIVERSE_MISSING"
	FatalWeightsHashMismatch  FatalCode = "WEIGHTS_HASH_MISMATCH"
	FatalModeContradiction    FatalCode = "MODE_CREDENTIAL_CONTRADICTION"
	FatalCalendarUnresolved   FatalCode = "CALENDAR_UNRESOLVED"
	FatalModelCardUnavailable FatalCode = "MODEL_CARD_UNAVAILABLE"
)

// FatalError aborts the run (no degrade, no writes)
// ⭐ SSOT: 치명적 오류는 이 타입으로만 표현
type FatalError struct {
	Code    FatalCode
	Message string
	Err     error
}

// NewFatal creates a FatalError
func NewFatal(code FatalCode, err error, format string, args ...interface{}) *FatalError {
	return &FatalError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err (or anything it wraps) is a FatalError
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
