package meeting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/internal/service/encoder"
	"counselmeet-backend/pkg/constants"
	apperrors "counselmeet-backend/pkg/errors"
	"counselmeet-backend/pkg/logger"
)

// Supervisor runs the external encoder processes behind recordings and streams
type Supervisor interface {
	Start(ctx context.Context, roomID string, cfg encoder.StartConfig) (*encoder.StartResult, error)
	Stop(ctx context.Context, roomID string, purpose encoder.Purpose) (*encoder.ExitStatus, error)
	Kill(roomID string, purpose encoder.Purpose) error
	Exits() <-chan encoder.ExitStatus
	Shutdown(ctx context.Context)
}

// RoomStore persists room metadata and recordings
type RoomStore interface {
	SaveRoom(ctx context.Context, room *domain.MeetingRoom) error
	UpdateRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus, at time.Time) error
	GetRoom(ctx context.Context, roomID string) (*domain.MeetingRoom, error)
	GetRoomByAccessCode(ctx context.Context, accessCode string) (*domain.MeetingRoom, error)
	SaveRecording(ctx context.Context, rec *domain.Recording) error
	ListRecordings(ctx context.Context, roomID string) ([]*domain.Recording, error)
}

// ChatArchive keeps chat beyond the in-memory window
type ChatArchive interface {
	AppendChat(ctx context.Context, roomID string, msg *domain.ChatMessage) error
}

// AuditTrail records room lifecycle events
type AuditTrail interface {
	LogMeetingEvent(ctx context.Context, eventType, roomID, actor string, metadata map[string]any) error
}

// RecordingUploader ships finished recordings to object storage and returns the object key
type RecordingUploader interface {
	Upload(ctx context.Context, rec *domain.Recording) (string, error)
}

// Config tunes the registry
type Config struct {
	ChatHistoryLimit    int
	InactivityThreshold time.Duration
	SweepInterval       time.Duration
	StartTimeout        time.Duration
	StopTimeout         time.Duration
	DefaultStreamTarget string
	DispatchWorkers     int
	DispatchQueueSize   int
}

// Option wires an optional collaborator into the Service
type Option func(*Service)

func WithStore(store RoomStore) Option {
	return func(s *Service) { s.store = store }
}

func WithChatArchive(archive ChatArchive) Option {
	return func(s *Service) { s.chatArchive = archive }
}

func WithAuditTrail(trail AuditTrail) Option {
	return func(s *Service) { s.audit = trail }
}

func WithUploader(uploader RecordingUploader) Option {
	return func(s *Service) { s.uploader = uploader }
}

// Service is the authoritative registry of meeting rooms
type Service struct {
	cfg        Config
	supervisor Supervisor
	notifier   Notifier

	store       RoomStore
	chatArchive ChatArchive
	audit       AuditTrail
	uploader    RecordingUploader

	mu    sync.RWMutex
	rooms map[string]*room
	codes map[string]string // access code -> room id

	// index is a leaf lock: nothing else is acquired while it is held
	indexMu          sync.Mutex
	participantRooms map[string]string

	finalizingMu sync.Mutex
	finalizing   map[string]*domain.Recording // force-finalized recordings awaiting encoder exit

	jobsMu     sync.RWMutex
	jobs       chan job
	jobsClosed bool
	workers    sync.WaitGroup
	background sync.WaitGroup

	now func() time.Time
}

// NewService creates the registry and starts its background workers
func NewService(cfg Config, supervisor Supervisor, notifier Notifier, opts ...Option) *Service {
	if cfg.ChatHistoryLimit <= 0 {
		cfg.ChatHistoryLimit = constants.ChatHistoryLimit
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = constants.RoomInactivityThreshold
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = constants.RoomSweepInterval
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = constants.EncoderStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = constants.EncoderStopTimeout
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = 2
	}
	if cfg.DispatchQueueSize <= 0 {
		cfg.DispatchQueueSize = 1024
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	s := &Service{
		cfg:              cfg,
		supervisor:       supervisor,
		notifier:         notifier,
		rooms:            make(map[string]*room),
		codes:            make(map[string]string),
		participantRooms: make(map[string]string),
		finalizing:       make(map[string]*domain.Recording),
		jobs:             make(chan job, cfg.DispatchQueueSize),
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := 0; i < cfg.DispatchWorkers; i++ {
		s.workers.Add(1)
		go s.dispatchWorker()
	}

	return s
}

// Run sweeps inactive rooms and consumes encoder exits until ctx is done
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	var exits <-chan encoder.ExitStatus
	if s.supervisor != nil {
		exits = s.supervisor.Exits()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if retired := s.Sweep(s.now()); len(retired) > 0 {
				logger.Info("Retired inactive rooms", zap.Int("count", len(retired)))
			}
		case status, ok := <-exits:
			if !ok {
				exits = nil
				continue
			}
			s.handleExit(status)
		}
	}
}

// Shutdown stops every encoder, finalizes live recordings and drains background jobs
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.RLock()
	rooms := make([]*room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	for _, r := range rooms {
		r.mu.Lock()
		if r.info.Status != domain.RoomStatusEnded {
			s.endRoomLocked(r, EndReasonShutdown)
		}
		r.mu.Unlock()
	}

	if s.supervisor != nil {
		s.supervisor.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		s.closeJobs()
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Meeting service shutdown timed out with background work pending")
	}
}

// room is the in-memory state of one meeting; everything below mu is guarded by it
type room struct {
	id          string
	createdBy   uuid.UUID
	hostKeyHash []byte

	mu           sync.Mutex
	info         domain.MeetingRoom
	participants map[string]*domain.Participant
	order        []string // active participant ids in activation order
	waiting      map[string]*domain.Participant
	waitingOrder []string
	chat         []domain.ChatMessage
	screenShares map[string]domain.ScreenShareSession

	recording         *domain.Recording
	recordingPending  bool
	recordingStopping bool
	recordings        []*domain.Recording

	stream         *domain.LiveStream
	streamPending  bool
	streamStopping bool

	// exits that arrived while a start was still being confirmed
	orphanExits map[string]encoder.ExitStatus
}

// RoomView is a consistent snapshot of a room
type RoomView struct {
	Room         domain.MeetingRoom          `json:"room"`
	Participants []domain.Participant        `json:"participants"`
	Waiting      []domain.Participant        `json:"waiting,omitempty"`
	Chat         []domain.ChatMessage        `json:"chat"`
	ScreenShares []domain.ScreenShareSession `json:"screen_shares"`
	Recording    *domain.Recording           `json:"recording,omitempty"`
	Recordings   []domain.Recording          `json:"recordings,omitempty"`
	Stream       *domain.LiveStream          `json:"stream,omitempty"`
}

func (s *Service) getRoom(roomID string) (*room, error) {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.RoomNotFoundError()
	}
	return r, nil
}

func (s *Service) indexParticipant(participantID, roomID string) {
	s.indexMu.Lock()
	s.participantRooms[participantID] = roomID
	s.indexMu.Unlock()
}

func (s *Service) unindexParticipant(participantID string) {
	s.indexMu.Lock()
	delete(s.participantRooms, participantID)
	s.indexMu.Unlock()
}

func (s *Service) participantRoom(participantID string) (string, bool) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	roomID, ok := s.participantRooms[participantID]
	return roomID, ok
}

// GetRoomView returns a snapshot of a live room, or the stored projection of a retired one
func (s *Service) GetRoomView(ctx context.Context, roomID string) (*RoomView, error) {
	r, err := s.getRoom(roomID)
	if err == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.view(true), nil
	}
	if s.store == nil {
		return nil, err
	}
	stored, storeErr := s.store.GetRoom(ctx, roomID)
	if storeErr != nil || stored == nil {
		return nil, err
	}
	return &RoomView{Room: *stored, Participants: []domain.Participant{}, Chat: []domain.ChatMessage{}, ScreenShares: []domain.ScreenShareSession{}}, nil
}

// LookupByAccessCode resolves a join code to its room
func (s *Service) LookupByAccessCode(ctx context.Context, code string) (*domain.MeetingRoom, error) {
	code = NormalizeAccessCode(code)
	s.mu.RLock()
	roomID, ok := s.codes[code]
	s.mu.RUnlock()
	if ok {
		if r, err := s.getRoom(roomID); err == nil {
			r.mu.Lock()
			info := r.info
			r.mu.Unlock()
			return &info, nil
		}
	}
	if s.store != nil {
		if stored, err := s.store.GetRoomByAccessCode(ctx, code); err == nil && stored != nil {
			return stored, nil
		}
	}
	return nil, apperrors.RoomNotFoundError()
}

// ListRecordings returns the recordings of a room, newest first
func (s *Service) ListRecordings(ctx context.Context, roomID string) ([]domain.Recording, error) {
	if r, err := s.getRoom(roomID); err == nil {
		r.mu.Lock()
		out := make([]domain.Recording, 0, len(r.recordings))
		for i := len(r.recordings) - 1; i >= 0; i-- {
			out = append(out, *r.recordings[i])
		}
		r.mu.Unlock()
		return out, nil
	}
	if s.store == nil {
		return nil, apperrors.RoomNotFoundError()
	}
	stored, err := s.store.ListRecordings(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Recording, 0, len(stored))
	for _, rec := range stored {
		out = append(out, *rec)
	}
	return out, nil
}

// Stats summarizes registry occupancy
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
	Waiting      int `json:"waiting"`
	Recordings   int `json:"recordings"`
}

// Stats counts rooms, participants and live recordings
func (s *Service) Stats() Stats {
	s.mu.RLock()
	rooms := make([]*room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	st := Stats{Rooms: len(rooms)}
	for _, r := range rooms {
		r.mu.Lock()
		st.Participants += len(r.participants)
		st.Waiting += len(r.waiting)
		if r.recording != nil {
			st.Recordings++
		}
		r.mu.Unlock()
	}
	return st
}

// view snapshots the room. r.mu must be held.
func (r *room) view(full bool) *RoomView {
	v := &RoomView{
		Room:         r.info,
		Participants: make([]domain.Participant, 0, len(r.order)),
		Chat:         []domain.ChatMessage{},
		ScreenShares: []domain.ScreenShareSession{},
	}
	if !full {
		return v
	}
	for _, id := range r.order {
		v.Participants = append(v.Participants, *r.participants[id])
	}
	for _, id := range r.waitingOrder {
		v.Waiting = append(v.Waiting, *r.waiting[id])
	}
	v.Chat = append(v.Chat, r.chat...)
	for _, ss := range r.screenShares {
		v.ScreenShares = append(v.ScreenShares, ss)
	}
	sort.Slice(v.ScreenShares, func(i, j int) bool {
		return v.ScreenShares[i].StartedAt.Before(v.ScreenShares[j].StartedAt)
	})
	if r.recording != nil {
		rec := *r.recording
		v.Recording = &rec
	}
	for _, rec := range r.recordings {
		v.Recordings = append(v.Recordings, *rec)
	}
	if r.stream != nil {
		st := *r.stream
		v.Stream = &st
	}
	return v
}

func (r *room) activeIDs(exclude string) []string {
	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *room) hostIDs() []string {
	var ids []string
	for _, id := range r.order {
		if r.participants[id].IsHost {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *room) hasHost() bool {
	for _, p := range r.participants {
		if p.IsHost {
			return true
		}
	}
	return false
}

func (r *room) removeActive(participantID string) {
	delete(r.participants, participantID)
	for i, id := range r.order {
		if id == participantID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *room) removeWaiting(participantID string) {
	delete(r.waiting, participantID)
	for i, id := range r.waitingOrder {
		if id == participantID {
			r.waitingOrder = append(r.waitingOrder[:i], r.waitingOrder[i+1:]...)
			break
		}
	}
}

func (r *room) requireHost(participantID string) (*domain.Participant, error) {
	p, ok := r.participants[participantID]
	if !ok || !p.IsHost {
		return nil, apperrors.NotAuthorizedError("Only a host can perform this action")
	}
	return p, nil
}

// emit delivers an event to ids. r.mu must be held so per-peer order follows room order.
func (s *Service) emit(r *room, ids []string, typ EventType, payload any) {
	if len(ids) == 0 {
		return
	}
	s.notifier.Deliver(ids, &Event{
		Type:      typ,
		RoomID:    r.id,
		Payload:   payload,
		Timestamp: s.now(),
	})
}

func (s *Service) appendChat(r *room, msg domain.ChatMessage) {
	r.chat = append(r.chat, msg)
	if over := len(r.chat) - s.cfg.ChatHistoryLimit; over > 0 {
		r.chat = append(r.chat[:0:0], r.chat[over:]...)
	}
	if s.chatArchive != nil {
		archived := msg
		roomID := r.id
		s.enqueue("chat_archive", func(ctx context.Context) error {
			return s.chatArchive.AppendChat(ctx, roomID, &archived)
		})
	}
}

// systemMessage appends a notice and delivers it to every active participant except exclude
func (s *Service) systemMessage(r *room, text, exclude string) {
	msg := domain.ChatMessage{
		ID:        uuid.New().String(),
		Type:      domain.ChatMessageSystem,
		Text:      text,
		Timestamp: s.now(),
	}
	s.appendChat(r, msg)
	s.emit(r, r.activeIDs(exclude), EventChatMessage, msg)
}

func (s *Service) auditEvent(eventType, roomID, actor string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.enqueue("audit", func(ctx context.Context) error {
		return s.audit.LogMeetingEvent(ctx, eventType, roomID, actor, metadata)
	})
}

func (s *Service) persistStatus(roomID string, status domain.RoomStatus, at time.Time) {
	if s.store == nil {
		return
	}
	s.enqueue("room_status", func(ctx context.Context) error {
		return s.store.UpdateRoomStatus(ctx, roomID, status, at)
	})
}

func (s *Service) persistRecording(rec domain.Recording) {
	if s.store == nil {
		return
	}
	s.enqueue("recording_save", func(ctx context.Context) error {
		return s.store.SaveRecording(ctx, &rec)
	})
}
