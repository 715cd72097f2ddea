package whatsapp

import "errors"

var (
	ErrNotConnected       = errors.New("WhatsApp session is not connected")
	ErrSendFailed         = errors.New("WhatsApp send failed")
	ErrInvalidDestination = errors.New("WhatsApp destination is not a valid chat ID")
	ErrTerminated         = errors.New("WhatsApp session is logged out, clear the auth state to pair again")
	ErrManagerClosed      = errors.New("WhatsApp session manager is closed")
)

// SendFailedError carries the client error behind a failed send.
type SendFailedError struct {
	Cause error
}

func (e *SendFailedError) Error() string {
	if e.Cause == nil {
		return ErrSendFailed.Error()
	}
	return ErrSendFailed.Error() + ": " + e.Cause.Error()
}

func (e *SendFailedError) Unwrap() error {
	return e.Cause
}

func (e *SendFailedError) Is(target error) bool {
	return target == ErrSendFailed
}
