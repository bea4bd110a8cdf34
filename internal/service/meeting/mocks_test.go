package meeting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/internal/service/encoder"
)

// MockSupervisor is a mock implementation of Supervisor
type MockSupervisor struct {
	mock.Mock
	exits chan encoder.ExitStatus
}

func newMockSupervisor() *MockSupervisor {
	return &MockSupervisor{exits: make(chan encoder.ExitStatus, 8)}
}

func (m *MockSupervisor) Start(ctx context.Context, roomID string, cfg encoder.StartConfig) (*encoder.StartResult, error) {
	args := m.Called(ctx, roomID, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*encoder.StartResult), args.Error(1)
}

func (m *MockSupervisor) Stop(ctx context.Context, roomID string, purpose encoder.Purpose) (*encoder.ExitStatus, error) {
	args := m.Called(ctx, roomID, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*encoder.ExitStatus), args.Error(1)
}

func (m *MockSupervisor) Kill(roomID string, purpose encoder.Purpose) error {
	args := m.Called(roomID, purpose)
	return args.Error(0)
}

func (m *MockSupervisor) Exits() <-chan encoder.ExitStatus {
	return m.exits
}

func (m *MockSupervisor) Shutdown(ctx context.Context) {}

// MockRoomStore is a mock implementation of RoomStore
type MockRoomStore struct {
	mock.Mock
}

func (m *MockRoomStore) SaveRoom(ctx context.Context, room *domain.MeetingRoom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRoomStore) UpdateRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus, at time.Time) error {
	args := m.Called(ctx, roomID, status, at)
	return args.Error(0)
}

func (m *MockRoomStore) GetRoom(ctx context.Context, roomID string) (*domain.MeetingRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MeetingRoom), args.Error(1)
}

func (m *MockRoomStore) GetRoomByAccessCode(ctx context.Context, accessCode string) (*domain.MeetingRoom, error) {
	args := m.Called(ctx, accessCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MeetingRoom), args.Error(1)
}

func (m *MockRoomStore) SaveRecording(ctx context.Context, rec *domain.Recording) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRoomStore) ListRecordings(ctx context.Context, roomID string) ([]*domain.Recording, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Recording), args.Error(1)
}

// MockUploader is a mock implementation of RecordingUploader
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, rec *domain.Recording) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

// captureNotifier records every delivery
type captureNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
}

type delivery struct {
	ids   []string
	event Event
}

func (n *captureNotifier) Deliver(ids []string, evt *Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, delivery{ids: append([]string(nil), ids...), event: *evt})
}

// received lists the event types delivered to a participant, in order
func (n *captureNotifier) received(participantID string) []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []EventType
	for _, d := range n.deliveries {
		for _, id := range d.ids {
			if id == participantID {
				out = append(out, d.event.Type)
			}
		}
	}
	return out
}

func (n *captureNotifier) last(typ EventType) (delivery, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.deliveries) - 1; i >= 0; i-- {
		if n.deliveries[i].event.Type == typ {
			return n.deliveries[i], true
		}
	}
	return delivery{}, false
}

func (n *captureNotifier) count(typ EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, d := range n.deliveries {
		if d.event.Type == typ {
			c++
		}
	}
	return c
}

func newTestService(t *testing.T, sup Supervisor, opts ...Option) (*Service, *captureNotifier) {
	t.Helper()
	notifier := &captureNotifier{}
	svc := NewService(Config{StartTimeout: time.Second, StopTimeout: time.Second}, sup, notifier, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc, notifier
}

func boolPtr(v bool) *bool { return &v }

// createRoom makes a room owned by a fresh user and returns it with the owner id
func createRoom(t *testing.T, svc *Service, level domain.SecurityLevel, maxParticipants int, settings *SettingsOverrides) (*CreateRoomOutput, uuid.UUID) {
	t.Helper()
	owner := uuid.New()
	out, err := svc.CreateRoom(context.Background(), &CreateRoomInput{
		Title:           "Contract review",
		CreatedBy:       owner,
		MeetingType:     domain.MeetingTypeConsultation,
		SecurityLevel:   level,
		MaxParticipants: maxParticipants,
		Settings:        settings,
	})
	require.NoError(t, err)
	return out, owner
}

func joinAsOwner(t *testing.T, svc *Service, roomID string, owner uuid.UUID, name string) *JoinOutput {
	t.Helper()
	out, err := svc.JoinRoom(context.Background(), roomID, &JoinInput{UserID: &owner, DisplayName: name})
	require.NoError(t, err)
	return out
}

func joinAsGuest(t *testing.T, svc *Service, roomID, name string) *JoinOutput {
	t.Helper()
	out, err := svc.JoinRoom(context.Background(), roomID, &JoinInput{DisplayName: name})
	require.NoError(t, err)
	return out
}
