// Package status defines the wire-level result codes carried in
// STATUS submessages and the mapping from domain errors to them, the
// way pkg/sdo maps an od.ODR to an SDOAbortCode.
package status

import "errors"

// Code is the status value echoed back to a client in a STATUS
// submessage.
type Code uint8

const (
	Ok Code = iota
	ErrInvalidData
	ErrAlreadyExists
	ErrUnmatched
	ErrUnknownReference
	ErrBackpressure
	ErrTimeout
	ErrIncompatible
	ErrResourceDenied
	ErrUnknownOperation
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "OK"
	case ErrInvalidData:
		return "INVALID_DATA"
	case ErrAlreadyExists:
		return "ALREADY_EXISTS"
	case ErrUnmatched:
		return "UNMATCHED"
	case ErrUnknownReference:
		return "UNKNOWN_REFERENCE"
	case ErrBackpressure:
		return "BACKPRESSURE"
	case ErrTimeout:
		return "TIMEOUT"
	case ErrIncompatible:
		return "INCOMPATIBLE"
	case ErrResourceDenied:
		return "RESOURCE_DENIED"
	default:
		return "UNKNOWN_OPERATION"
	}
}

// domainToCode collects the sentinel errors each package exports and
// their wire status, mirroring sdo's OdToAbortMap.
var domainToCode = make(map[error]Code)

// Register associates a domain sentinel error with its wire status.
// Called from package init()s so every package owns its own mapping
// entry instead of this package knowing about every error kind.
func Register(err error, code Code) {
	domainToCode[err] = code
}

// FromError maps a domain error to its wire status code, unwrapping
// with errors.Is against every registered sentinel. Unregistered
// errors map to ErrInvalidData, the most conservative choice.
func FromError(err error) Code {
	if err == nil {
		return Ok
	}
	for sentinel, code := range domainToCode {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrInvalidData
}
