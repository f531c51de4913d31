package domain

// MessageBus hands inbound events from the source to the relay loop.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}
