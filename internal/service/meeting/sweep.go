package meeting

import (
	"time"

	"go.uber.org/zap"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
)

// Sweep retires every room whose last activity is older than the inactivity
// threshold, ending it first if nothing else did. It returns the retired ids.
func (s *Service) Sweep(now time.Time) []string {
	cutoff := now.Add(-s.cfg.InactivityThreshold)

	s.mu.RLock()
	candidates := make([]*room, 0, len(s.rooms))
	for _, r := range s.rooms {
		candidates = append(candidates, r)
	}
	s.mu.RUnlock()

	var retired []string
	for _, r := range candidates {
		r.mu.Lock()
		if !r.info.LastActivity().Before(cutoff) {
			r.mu.Unlock()
			continue
		}
		if r.info.Status != domain.RoomStatusEnded {
			s.endRoomLocked(r, EndReasonInactive)
		}
		code := r.info.AccessCode
		r.mu.Unlock()

		s.mu.Lock()
		if s.rooms[r.id] == r {
			delete(s.rooms, r.id)
			if s.codes[code] == r.id {
				delete(s.codes, code)
			}
			metrics.MeetingRoomsActive.Dec()
			retired = append(retired, r.id)
		}
		s.mu.Unlock()

		logger.Debug("Retired meeting room", zap.String("room_id", r.id))
	}
	return retired
}
