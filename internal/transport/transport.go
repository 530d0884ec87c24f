package transport

// Transport moves messages between the engine and its peers. Send must not
// block the simulation thread; Receive yields inbound messages until the
// transport is closed.
type Transport interface {
	Send(Message) error
	Receive() <-chan Message
	Close() error
}
