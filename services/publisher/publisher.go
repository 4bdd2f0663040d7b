package publisher

// Publisher represents a service for publishing price update events
type Publisher interface {
	// Publish publishes a message to the stream
	Publish(key string, message []byte) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}

// EventPricesUpdated is the stream field carrying a price update
const EventPricesUpdated = "prices_updated"
