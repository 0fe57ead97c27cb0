package types

import "errors"

var (
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	ErrBelowThreshold     = errors.New("below profit threshold")
	ErrRelayRejected      = errors.New("relay rejected bundle")
	ErrSigningFailed      = errors.New("signing failed")
	ErrFeeTooHigh         = errors.New("fee quote above ceiling")
	ErrStoreUnavailable   = errors.New("dedupe store unavailable")
)
