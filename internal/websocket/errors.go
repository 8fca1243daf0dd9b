// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrSessionRevoked = errors.New("session has been revoked")
	ErrUnauthorized   = errors.New("unauthorized")
)
