package chathub

import (
	"context"
	"dealchat/backend/internal/config"
	"dealchat/backend/internal/models"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrHubStopped is returned by hub queries after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// HistoryLoader loads the history delivered to a joining connection.
type HistoryLoader interface {
	CachedHistory(ctx context.Context, roomID string) ([]models.ChatMessage, error)
}

// Translator resolves localized texts for error events.
type Translator interface {
	GetString(lang, key string) string
}

// HubConfig holds hub tuning knobs.
type HubConfig struct {
	// RecheckDelay is how long after a join the other party's presence is
	// checked again. Zero disables the re-check.
	RecheckDelay time.Duration
	// HistoryTimeout bounds the history load on join.
	HistoryTimeout time.Duration
	// ReplayWindow is how many client message ids are remembered per room.
	ReplayWindow int
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		RecheckDelay:   config.DefaultRecheckDelay,
		HistoryTimeout: config.HistoryLoadTimeout,
		ReplayWindow:   config.ReplayWindow,
	}
}

// Inbound is a decoded event together with the connection it arrived on.
type Inbound struct {
	Client Client
	Event  models.InboundEvent
}

type recheck struct {
	room string
	user string
}

// ManagerService is the hub. A single goroutine (Run) owns the registry,
// rooms, typing and call state; everything else talks to it via channels.
type ManagerService struct {
	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Inbound

	recheckCh chan recheck
	queryCh   chan func()
	done      chan struct{}

	clients  map[string]Client
	bindings map[string]string // connection -> user
	registry *Registry
	rooms    *RoomDirectory
	typing   *TypingTracker
	calls    map[string]*callState
	replays  *replayGuard
	drops    []Client

	history   HistoryLoader
	persister *Persister
	messages  Translator
	config    HubConfig
	Stats     *Stats

	now func() time.Time
	bg  sync.WaitGroup
}

// NewManagerService creates a hub. persister and messages may be nil.
func NewManagerService(history HistoryLoader, persister *Persister, messages Translator, cfg HubConfig) *ManagerService {
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = DefaultHubConfig().HistoryTimeout
	}
	return &ManagerService{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Inbound),
		recheckCh:    make(chan recheck),
		queryCh:      make(chan func()),
		done:         make(chan struct{}),
		clients:      make(map[string]Client),
		bindings:     make(map[string]string),
		registry:     NewRegistry(),
		rooms:        NewRoomDirectory(),
		typing:       NewTypingTracker(),
		calls:        make(map[string]*callState),
		replays:      newReplayGuard(cfg.ReplayWindow),
		history:      history,
		persister:    persister,
		messages:     messages,
		config:       cfg,
		Stats:        &Stats{},
		now:          time.Now,
	}
}

// Run processes hub events until ctx is cancelled. On return every client
// is closed.
func (m *ManagerService) Run(ctx context.Context) {
	log.Info().Str("module", "hub").Msg("hub started")
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-m.RegisterCh:
			m.safely("register", func() { m.handleRegister(c) })
		case c := <-m.UnregisterCh:
			m.safely("unregister", func() { m.handleUnregister(c) })
		case in := <-m.IncomingCh:
			m.safely(in.Event.Name(), func() { m.handleInbound(in) })
		case r := <-m.recheckCh:
			m.safely("recheck", func() { m.handleRecheck(r) })
		case fn := <-m.queryCh:
			m.safely("query", fn)
		}
		m.safely("drop", m.flushDrops)
	}
}

// Done is closed once the hub has stopped.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

func (m *ManagerService) shutdown() {
	close(m.done)
	for id, c := range m.clients {
		c.Close()
		delete(m.clients, id)
	}
	m.Stats.Connections.Store(0)
	m.bg.Wait()
	log.Info().Str("module", "hub").Msg("hub stopped")
}

// safely runs one unit of hub work; a panic is logged and the loop goes on.
func (m *ManagerService) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.Stats.Panics.Add(1)
			log.Error().Str("module", "hub").Str("event", what).
				Interface("panic", r).Bytes("stack", debug.Stack()).
				Msg("recovered from panic while handling event")
		}
	}()
	fn()
}

// Register hands c to the hub. It reports false once the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Dispatch queues ev from c. Events of one connection are handled in the
// order they are dispatched.
func (m *ManagerService) Dispatch(c Client, ev models.InboundEvent) bool {
	select {
	case m.IncomingCh <- Inbound{Client: c, Event: ev}:
		return true
	case <-m.done:
		return false
	}
}

// do runs fn on the hub goroutine and waits for it.
func (m *ManagerService) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case m.queryCh <- task:
	case <-m.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Presence returns the presence snapshot of a user.
func (m *ManagerService) Presence(ctx context.Context, user string) (models.UserPresence, error) {
	user = models.NormalizeUserID(user)
	var p models.UserPresence
	err := m.do(ctx, func() { p = m.registry.Snapshot(user) })
	return p, err
}

// StatsSnapshot returns hub and persistence counters.
func (m *ManagerService) StatsSnapshot() StatsSnapshot {
	s := m.Stats.Snapshot()
	if m.persister != nil {
		s.Persistence = m.persister.Stats()
	}
	return s
}

func (m *ManagerService) handleRegister(c Client) {
	id := c.GetConnID()
	if _, ok := m.clients[id]; ok {
		return
	}
	m.clients[id] = c
	if user := models.NormalizeUserID(c.GetUserID()); user != "" {
		m.bindings[id] = user
	}
	m.Stats.Connections.Add(1)
	log.Debug().Str("module", "hub").Str("conn_id", id).Str("user_id", m.bindings[id]).Msg("client registered")
}

// handleUnregister is the disconnect path: the connection leaves every
// room, and if it was the user's last one, each room the user was in gets
// a single offline status.
func (m *ManagerService) handleUnregister(c Client) {
	id := c.GetConnID()
	if _, ok := m.clients[id]; !ok {
		return
	}
	delete(m.clients, id)
	c.Close()
	m.Stats.Connections.Add(-1)

	user := m.bindings[id]
	delete(m.bindings, id)
	if user == "" {
		for _, room := range m.rooms.LeaveAll(id) {
			if m.rooms.MemberCount(room) == 0 {
				m.roomVacated(room)
			}
		}
		return
	}
	// the closed connection may have been the one typing while the user
	// stays online elsewhere
	for _, room := range m.rooms.LeaveAll(id) {
		if m.rooms.MemberCount(room) == 0 {
			m.roomVacated(room)
		}
		if !m.userInRoom(room, user) && m.typing.Stop(room, user) {
			m.broadcast(room, models.NewTypingEvent(room, user, false), user)
		}
	}

	rooms, wentOffline := m.registry.RemoveConnection(user, id)
	if !wentOffline {
		return
	}
	for _, room := range m.typing.ClearUser(user) {
		m.broadcast(room, models.NewTypingEvent(room, user, false), user)
	}
	for _, room := range rooms {
		m.broadcast(room, models.NewUserStatus(user, models.StatusOffline), user)
	}
	log.Info().Str("module", "hub").Str("user_id", user).Int("rooms", len(rooms)).Msg("user offline")
}

func (m *ManagerService) handleInbound(in Inbound) {
	c, ev := in.Client, in.Event
	if _, ok := m.clients[c.GetConnID()]; !ok {
		return
	}
	m.Stats.EventsHandled.Add(1)

	if err := m.authorize(c, ev); err != nil {
		m.reportError(c, ev.Name(), err)
		return
	}
	user := ev.Actor()
	now := m.now()
	m.registry.Touch(user, now)

	switch e := ev.(type) {
	case *models.UserOnline:
		m.registry.MarkOnline(user, c.GetConnID(), now)
	case *models.JoinRoom:
		m.join(c, e.RoomID, user)
	case *models.LeaveRoom:
		m.leave(c, e.RoomID, user)
	case *models.Typing:
		m.setTyping(e.RoomID, user, e.Start)
	case *models.ChatMessageIn:
		if e.ID != "" && m.replays.Seen(e.RoomID, e.ID) {
			log.Debug().Str("module", "hub").Str("room_id", e.RoomID).Str("message_id", e.ID).Msg("duplicate message id dropped")
			return
		}
		if err := m.submit(e.ToMessage(now)); err != nil {
			m.reportError(c, ev.Name(), err)
		}
	case *models.WebRTCSignal:
		m.relaySignal(e)
	case *models.VideoCallStatus:
		m.callStatus(e)
	case *models.VideoCallEnded:
		m.callEnded(e)
	default:
		m.reportError(c, ev.Name(), fmt.Errorf("%w: unhandled event %s", models.ErrInvalidEvent, ev.Name()))
	}
}

// authorize binds a connection to the first user it speaks for and rejects
// events for another user or for a room the user is not part of.
func (m *ManagerService) authorize(c Client, ev models.InboundEvent) error {
	id := c.GetConnID()
	actor := ev.Actor()
	if bound, ok := m.bindings[id]; ok && bound != actor {
		return fmt.Errorf("%w: connection is bound to %s", models.ErrIdentityMismatch, bound)
	}
	if room := ev.Room(); room != "" && !models.RoomIncludes(room, actor) {
		return fmt.Errorf("%w: %s in %s", models.ErrNotParticipant, actor, room)
	}
	m.bindings[id] = actor
	return nil
}

// reportError sends an error event to c only. Safe to call from any goroutine.
func (m *ManagerService) reportError(c Client, event string, err error) {
	m.Stats.EventsRejected.Add(1)
	code := models.ErrorCode(err)
	text := err.Error()
	if m.messages != nil {
		text = m.messages.GetString(c.GetLang(), "error."+code)
	}
	out := models.Outbound{
		Event: models.EventError,
		Data:  models.ErrorEvent{Code: code, Message: text, Event: event},
	}
	if sendErr := c.Send(out); sendErr != nil {
		log.Debug().Str("module", "hub").Str("conn_id", c.GetConnID()).Err(sendErr).Msg("error event not delivered")
	}
	log.Debug().Str("module", "hub").Str("conn_id", c.GetConnID()).Str("event", event).Err(err).Msg("event rejected")
}

// broadcast delivers ev to every connection in room except those bound to
// skipUser, and returns how many connections accepted it.
func (m *ManagerService) broadcast(room string, ev models.Outbound, skipUser string) int {
	n := 0
	for _, conn := range m.rooms.Members(room) {
		if skipUser != "" && m.bindings[conn] == skipUser {
			continue
		}
		c, ok := m.clients[conn]
		if !ok {
			continue
		}
		if m.deliver(c, ev) {
			n++
		}
	}
	return n
}

func (m *ManagerService) deliver(c Client, ev models.Outbound) bool {
	if m.dropping(c) {
		return false
	}
	err := c.Send(ev)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrBackpressure) {
		m.Stats.SlowClientsDropped.Add(1)
		log.Warn().Str("module", "hub").Str("conn_id", c.GetConnID()).Msg("send queue full, dropping client")
	}
	m.drops = append(m.drops, c)
	return false
}

func (m *ManagerService) dropping(c Client) bool {
	for _, d := range m.drops {
		if d.GetConnID() == c.GetConnID() {
			return true
		}
	}
	return false
}

// flushDrops disconnects clients that could not keep up. It runs after each
// event so a broadcast never mutates the membership it iterates.
func (m *ManagerService) flushDrops() {
	for len(m.drops) > 0 {
		c := m.drops[0]
		m.drops = m.drops[1:]
		m.handleUnregister(c)
	}
}

func (m *ManagerService) roomVacated(room string) {
	m.replays.Forget(room)
	delete(m.calls, room)
}
