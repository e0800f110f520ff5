package domain

import "errors"

// Sentinel errors returned by the session service. The API layer maps them
// onto the wire taxonomy (INVALID_SID, NOT_FOUND, TX_MISMATCH, CANNOT_RENEW).
var (
	ErrMissingSID     = errors.New("sid required")
	ErrUnknownSession = errors.New("unknown sid")
	ErrTxMismatch     = errors.New("txID mismatch")
	ErrCannotRenew    = errors.New("cannot renew in current status")
)
