package rooms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/internal/roomapi"
)

// RoomService is the remote room API surface the manager depends on.
type RoomService interface {
	CreateRoom(ctx context.Context, name string) (roomapi.Room, error)
	DeleteRoom(ctx context.Context, name string) error
}

// TokenIssuer signs participant credentials.
type TokenIssuer interface {
	ParticipantToken(identity, name, roomName string) (string, error)
}

// WorkerRunner executes one voice pipeline bound to one room until its
// context is cancelled. The manager supervises it and keeps its result
// observable instead of detaching it.
type WorkerRunner func(ctx context.Context, roomName, participantIdentity string) error

// SessionDetails is returned to the frontend on session creation.
type SessionDetails struct {
	RoomName            string `json:"room_name"`
	ServerURL           string `json:"server_url"`
	ParticipantToken    string `json:"participant_token"`
	ParticipantName     string `json:"participant_name"`
	ParticipantIdentity string `json:"participant_identity"`
}

// SessionInfo is one row of the active session listing.
type SessionInfo struct {
	RoomName  string  `json:"room_name"`
	CreatedAt float64 `json:"created_at"`
	Duration  float64 `json:"duration"`
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// stop cancels the worker and waits for it to settle, bounded by timeout.
func (w *worker) stop(timeout time.Duration) error {
	w.cancel()
	select {
	case <-w.done:
	case <-time.After(timeout):
		return errors.New("worker did not stop in time")
	}
	if w.err != nil && !errors.Is(w.err, context.Canceled) {
		return w.err
	}
	return nil
}

type session struct {
	roomName  string
	identity  string
	userName  string
	createdAt time.Time
	worker    *worker
}

// Manager owns the in-memory session registry: one worker per room, keyed
// by room name. The registry is never persisted; a process restart loses
// all sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	svc         RoomService
	tokens      TokenIssuer
	runWorker   WorkerRunner
	serverURL   string
	baseCtx     context.Context
	stopTimeout time.Duration

	onRoomServiceError func(operation string)
}

func NewManager(baseCtx context.Context, svc RoomService, tokens TokenIssuer, runWorker WorkerRunner, serverURL string) *Manager {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Manager{
		sessions:    make(map[string]*session),
		svc:         svc,
		tokens:      tokens,
		runWorker:   runWorker,
		serverURL:   serverURL,
		baseCtx:     baseCtx,
		stopTimeout: 5 * time.Second,
	}
}

// CreateSession creates a remote room, issues a participant token, launches
// the pipeline worker and records the session. A failure on any step leaves
// no registry entry behind; an already created remote room is deleted
// best-effort.
func (m *Manager) CreateSession(ctx context.Context, userName string) (SessionDetails, error) {
	if strings.TrimSpace(userName) == "" {
		userName = "User"
	}
	roomName := "voice_room_" + shortID()
	identity := "user_" + shortID()

	if _, err := m.svc.CreateRoom(ctx, roomName); err != nil {
		m.noteRoomServiceError("create_room")
		return SessionDetails{}, fmt.Errorf("create room: %w", err)
	}

	tok, err := m.tokens.ParticipantToken(identity, userName, roomName)
	if err != nil {
		m.deleteRemoteRoom(roomName)
		return SessionDetails{}, fmt.Errorf("issue token: %w", err)
	}

	// The worker runs on the manager's long-lived context, not the request
	// context: the session outlives the HTTP call that created it.
	wctx, cancel := context.WithCancel(m.baseCtx)
	w := &worker{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = m.runWorker(wctx, roomName, identity)
		if w.err != nil && !errors.Is(w.err, context.Canceled) {
			log.Printf("rooms: worker for %s exited: %v", roomName, w.err)
		}
	}()

	s := &session{
		roomName:  roomName,
		identity:  identity,
		userName:  userName,
		createdAt: time.Now().UTC(),
		worker:    w,
	}

	m.mu.Lock()
	if _, exists := m.sessions[roomName]; exists {
		m.mu.Unlock()
		w.cancel()
		m.deleteRemoteRoom(roomName)
		return SessionDetails{}, fmt.Errorf("room name collision: %s", roomName)
	}
	m.sessions[roomName] = s
	m.mu.Unlock()

	return SessionDetails{
		RoomName:            roomName,
		ServerURL:           m.serverURL,
		ParticipantToken:    tok,
		ParticipantName:     userName,
		ParticipantIdentity: identity,
	}, nil
}

// EndSession tears a session down. Unknown rooms are a no-op: ending twice
// is not an error. The registry entry is removed unconditionally; cleanup
// failures are aggregated and returned rather than discarded.
func (m *Manager) EndSession(ctx context.Context, roomName string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[roomName]
	delete(m.sessions, roomName)
	m.mu.Unlock()

	if !ok {
		return false, nil
	}

	var errs []error
	if err := s.worker.stop(m.stopTimeout); err != nil {
		errs = append(errs, fmt.Errorf("stop worker: %w", err))
	}
	if err := m.svc.DeleteRoom(ctx, roomName); err != nil {
		m.noteRoomServiceError("delete_room")
		errs = append(errs, fmt.Errorf("delete room: %w", err))
	}
	return true, errors.Join(errs...)
}

// ListSessions snapshots the registry, oldest first.
func (m *Manager) ListSessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionInfo{
			RoomName:  s.roomName,
			CreatedAt: float64(s.createdAt.UnixNano()) / 1e9,
			Duration:  now.Sub(s.createdAt).Seconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown ends every session best-effort. Used on process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, info := range m.ListSessions() {
		if _, err := m.EndSession(ctx, info.RoomName); err != nil {
			log.Printf("rooms: shutdown cleanup for %s: %v", info.RoomName, err)
		}
	}
}

func (m *Manager) deleteRemoteRoom(roomName string) {
	ctx, cancel := context.WithTimeout(m.baseCtx, 5*time.Second)
	defer cancel()
	if err := m.svc.DeleteRoom(ctx, roomName); err != nil {
		m.noteRoomServiceError("delete_room")
		log.Printf("rooms: cleanup of remote room %s failed: %v", roomName, err)
	}
}

// SetRoomServiceErrorHook registers a callback fired when a remote room
// service call fails. Used to feed metrics. Must be set before the manager
// starts serving requests.
func (m *Manager) SetRoomServiceErrorHook(fn func(operation string)) {
	m.onRoomServiceError = fn
}

func (m *Manager) noteRoomServiceError(operation string) {
	if m.onRoomServiceError != nil {
		m.onRoomServiceError(operation)
	}
}

// shortID returns the 8 hex character suffix used for room and participant
// names. Collision probability is treated as negligible.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
