package core

// Frame is a marshaled wire payload ready to be written to a client.
type Frame []byte

// ConnID is an opaque process-unique token minted by the transport when a
// connection is established. The chat core only ever reads it.
type ConnID string

// Sink abstracts the outbound half of one client connection.
// Owned by the adapter; the adapter must Close() it.
type Sink interface {
	TrySend(Frame) error
	Close()
}
