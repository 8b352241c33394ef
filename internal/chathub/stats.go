package chathub

import "sync/atomic"

// Stats holds relay counters. Fields are updated atomically and may be read
// from any goroutine through Snapshot.
type Stats struct {
	Connections        atomic.Int64
	EventsHandled      atomic.Uint64
	EventsRejected     atomic.Uint64
	MessagesRelayed    atomic.Uint64
	RoomEmpty          atomic.Uint64
	SignalsRelayed     atomic.Uint64
	CallsRecorded      atomic.Uint64
	SlowClientsDropped atomic.Uint64
	Panics             atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Connections        int64        `json:"connections"`
	EventsHandled      uint64       `json:"eventsHandled"`
	EventsRejected     uint64       `json:"eventsRejected"`
	MessagesRelayed    uint64       `json:"messagesRelayed"`
	RoomEmpty          uint64       `json:"roomEmpty"`
	SignalsRelayed     uint64       `json:"signalsRelayed"`
	CallsRecorded      uint64       `json:"callsRecorded"`
	SlowClientsDropped uint64       `json:"slowClientsDropped"`
	Panics             uint64       `json:"panics"`
	Persistence        PersistStats `json:"persistence"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Connections:        s.Connections.Load(),
		EventsHandled:      s.EventsHandled.Load(),
		EventsRejected:     s.EventsRejected.Load(),
		MessagesRelayed:    s.MessagesRelayed.Load(),
		RoomEmpty:          s.RoomEmpty.Load(),
		SignalsRelayed:     s.SignalsRelayed.Load(),
		CallsRecorded:      s.CallsRecorded.Load(),
		SlowClientsDropped: s.SlowClientsDropped.Load(),
		Panics:             s.Panics.Load(),
	}
}
