package realtime

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAddress      = errors.New("invalid hub address")
	ErrAllTransportsFailed = errors.New("no transport tier could reach the hub")
	ErrReconnectExhausted  = errors.New("reconnect attempts exhausted")
	ErrHandshakeRejected   = errors.New("hub rejected handshake")
	ErrNoCommonTransport   = errors.New("hub offers none of the tier's transports")
	ErrServerTimeout       = errors.New("no message from hub within server timeout")
	ErrTransportClosed     = errors.New("transport closed")
	ErrInvalidOptions      = errors.New("invalid connection options")
)

// CloseError is returned when the hub ends the channel with a close message.
type CloseError struct {
	Message        string
	AllowReconnect bool
}

func (e *CloseError) Error() string {
	if e.Message == "" {
		return "hub closed the connection"
	}
	return fmt.Sprintf("hub closed the connection: %s", e.Message)
}
