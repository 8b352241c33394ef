package chathub

import (
	"dealchat/backend/internal/models"
	"errors"
)

var (
	// ErrBackpressure is returned by Send when a client's queue is full.
	ErrBackpressure = errors.New("backpressure")
	// ErrClientClosed is returned by Send after Close.
	ErrClientClosed = errors.New("client closed")
)

// Client is the interface for one live connection. It abstracts the
// underlying transport so the hub can manage connections uniformly.
type Client interface {
	// GetConnID returns the unique identifier of this connection handle.
	GetConnID() string
	// GetUserID returns the user the transport authenticated, or "" when the
	// connection is bound by its first event instead.
	GetUserID() string
	// GetLang returns the language used for error texts sent to this client.
	GetLang() string

	// Send queues ev for delivery without blocking. It is safe to call from
	// any goroutine and returns ErrBackpressure when the queue is full.
	Send(ev models.Outbound) error

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the connection. It is idempotent.
	Close()
}
