package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Gateway/Store/Media errors are contained to their unit
// of work by the caller; only Config and persistent Auth are fatal for
// the whole process.
var (
	ErrConfig           = errors.New("config: invalid or missing configuration")
	ErrAuth             = errors.New("auth: authenticator rejected or no session")
	ErrGatewayTransport = errors.New("gateway: transport failure")
	ErrGatewayNotFound  = errors.New("gateway: peer or resource not found")
	ErrStoreConflict    = errors.New("store: transaction conflict")
	ErrStoreIO          = errors.New("store: io failure")
	ErrMediaPermanent   = errors.New("media: permanently failed after retries")
	ErrCancelled        = errors.New("cancelled")
)

// FloodWaitError is the one error kind in the taxonomy that carries data: the
// remote rate-limit signal, with the number of seconds the caller must wait
// before issuing further calls in the same scope.
type FloodWaitError struct {
	Seconds int
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("gateway: FLOOD_WAIT %ds", e.Seconds)
}

// Short reports whether this wait is handled in place: waits under 60s
// are slept through by the caller; longer waits are propagated up to the
// caller's scheduling layer.
func (e *FloodWaitError) Short() bool {
	return e.Seconds < 60
}

// AsFloodWait unwraps err into a *FloodWaitError if that is (or wraps) its
// underlying cause.
func AsFloodWait(err error) (*FloodWaitError, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw, true
	}
	return nil, false
}
