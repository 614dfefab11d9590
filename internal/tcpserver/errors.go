package tcpserver

import "errors"

var (
	ErrUnauthenticated   = errors.New("tcpserver: message received before login")
	ErrCapacity          = errors.New("tcpserver: session capacity exceeded")
	ErrConnectionGone    = errors.New("tcpserver: connection not found")
	ErrInvalidIMEIAtLogin = errors.New("tcpserver: invalid imei at login")
)
