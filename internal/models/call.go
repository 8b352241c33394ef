package models

import "time"

// CallStatus is a state of the two-party call state machine.
type CallStatus string

const (
	CallIdle     CallStatus = "idle"
	CallCalling  CallStatus = "calling"
	CallRinging  CallStatus = "ringing"
	CallAnswered CallStatus = "answered"
	CallEnded    CallStatus = "ended"
)

var callTransitions = map[CallStatus][]CallStatus{
	CallIdle:     {CallCalling},
	CallCalling:  {CallRinging, CallAnswered, CallEnded},
	CallRinging:  {CallAnswered, CallEnded},
	CallAnswered: {CallAnswered, CallEnded},
	CallEnded:    {CallIdle, CallCalling},
}

// Valid reports whether s is a known call status.
func (s CallStatus) Valid() bool {
	_, ok := callTransitions[s]
	return ok
}

// CanTransition reports whether an endpoint may move from one status to
// another. The relay itself never enforces this; endpoints do.
func CanTransition(from, to CallStatus) bool {
	if from == "" {
		from = CallIdle
	}
	for _, next := range callTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CallSession is the relay's view of a call in a room, derived purely from
// the status events it has passed through.
type CallSession struct {
	RoomID     string     `json:"roomId"`
	Initiator  string     `json:"initiator,omitempty"`
	Status     CallStatus `json:"status"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Apply records a status event. Illegal transitions are recorded as-is.
func (s *CallSession) Apply(status CallStatus, sender string, now time.Time) {
	switch status {
	case CallCalling:
		s.Initiator = sender
		s.StartedAt = &now
		s.AnsweredAt = nil
	case CallAnswered:
		if s.AnsweredAt == nil {
			s.AnsweredAt = &now
		}
	}
	s.Status = status
	s.UpdatedAt = now
}

// TalkSeconds is how long the call has been answered as of now, in whole
// seconds. A call that was never answered lasted zero seconds.
func (s CallSession) TalkSeconds(now time.Time) int {
	if s.AnsweredAt == nil || now.Before(*s.AnsweredAt) {
		return 0
	}
	return int(now.Sub(*s.AnsweredAt) / time.Second)
}
