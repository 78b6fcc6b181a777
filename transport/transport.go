// Package transport moves whole JSON text frames between a party and the
// relay. One delivered message is one complete JSON document, framing is the
// transport's problem, content is not.
package transport

import "errors"

// ErrClosed reports a send on a transport that was closed, locally or by the
// peer.
var ErrClosed = errors.New("transport closed")

// Transport is a bidirectional pipe of text messages. Messages received
// before a handler is registered are held back and replayed, in order, when
// SetOnMessage is called.
type Transport interface {
	Send(message string) error
	SetOnMessage(fn func(message string))
	SetOnOpen(fn func())
	Close() error
}
