package config

import "time"

const (
	// Presence
	DefaultRecheckDelay = 500 * time.Millisecond

	// Typing
	TypingIdleTimeout = 3 * time.Second

	// History
	DefaultCacheTTL    = 10 * time.Minute
	HistoryLoadTimeout = 5 * time.Second
	ReplayWindow       = 256

	// Connections
	DefaultSendBuffer      = 256
	DefaultEventsPerSecond = 20.0
	DefaultEventBurst      = 40

	// Persistence
	DefaultPersistWorkers = 4
	DefaultPersistQueue   = 1024
	DefaultPersistTimeout = 5 * time.Second

	// Tokens
	TokenIssuer     = "dealchat-relay"
	DefaultTokenTTL = 72 * time.Hour

	// Catalog
	DefaultCatalogTimeout = 2 * time.Second

	DefaultShutdownTimeout = 30 * time.Second
)
