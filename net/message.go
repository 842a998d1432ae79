package net

import (
	"errors"
	"fmt"

	"github.com/lcx/flightrpc/message"
)

// ErrUnknownService is returned when no handler is registered for a service id.
var ErrUnknownService = errors.New("unknown service id")

// MsgHandle runs one service. It returns the encoded success body, an
// *AppError to reply with TagError, or any other error to drop the datagram.
type MsgHandle func(dd *DispatcherDelivery, body []byte) ([]byte, error)

// MsgProtoInfo describes a registered service.
type MsgProtoInfo struct {
	ServiceID message.ServiceID // Service id read after the correlation id
	Name      string            // Name used in logs and metrics
	MsgHandle MsgHandle         // Handler for the service
}

// ResTag is the handler tag of a successful reply.
func (pi *MsgProtoInfo) ResTag() uint8 {
	return uint8(pi.ServiceID)
}

// AppError is a business rule violation. The dispatcher turns it into a
// TagError reply carrying Message.
type AppError struct {
	Message string
	Err     error
}

// NewAppError builds an AppError with a formatted message wrapping err.
func NewAppError(err error, format string, args ...any) *AppError {
	return &AppError{Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}
