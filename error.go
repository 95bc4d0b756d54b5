package profiles

import (
	"errors"
	"fmt"
)

// ErrorCode classifies errors raised by the manager and the record stores.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	// LockAcquisitionFailure means another process holds the record's session.
	LockAcquisitionFailure
	// SessionLost means this process no longer owns the session it loaded.
	SessionLost
	// PayloadCorrupted means the stored payload could not be decoded.
	PayloadCorrupted
	// ValidationFailed means the payload was rejected by the configured Validator.
	ValidationFailed
	// TemplateMisconfigured means the template can't serve as a JSON object default.
	TemplateMisconfigured
	// ManagerClosed means the manager was closed.
	ManagerClosed
)

func (c ErrorCode) String() string {
	switch c {
	case LockAcquisitionFailure:
		return "lock acquisition failure"
	case SessionLost:
		return "session lost"
	case PayloadCorrupted:
		return "payload corrupted"
	case ValidationFailed:
		return "validation failed"
	case TemplateMisconfigured:
		return "template misconfigured"
	case ManagerClosed:
		return "manager closed"
	}
	return "unknown"
}

// Error is the custom error carried across the profiles packages.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	if e.UserData != nil {
		return fmt.Sprintf("%s: %v, user data: %v", e.Code, e.Err, e.UserData)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// ErrManagerClosed is returned by operations issued after Manager.Close.
var ErrManagerClosed = Error{Code: ManagerClosed, Err: errors.New("profile manager is closed")}

// CodeOf extracts the ErrorCode of err, Unknown if err is not (or does not wrap) an Error.
func CodeOf(err error) ErrorCode {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
