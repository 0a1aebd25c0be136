package events

// Notification is one lifecycle notification as received from the broker.
type Notification struct {
	Topic string
	Data  []byte
}

// Subscriber receives lifecycle notifications, as used by the watch command.
type Subscriber interface {
	// Subscribe delivers notifications on the returned channel. Call the
	// returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Notification, func(), error)
	Close() error
}
