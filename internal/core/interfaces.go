package core

// Frame is a raw signaling payload, already encoded for the wire.
type Frame []byte

// SessionID identifies one connected client. It is the connection's
// opaque identity, stable for the lifetime of the socket.
type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
