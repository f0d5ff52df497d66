package domain

import "time"

// RoomStatus is the lifecycle state of the room roster, independent of the
// game's phase.
type RoomStatus string

const (
	RoomWaiting   RoomStatus = "waiting"
	RoomStarting  RoomStatus = "starting"
	RoomPlaying   RoomStatus = "playing"
	RoomCompleted RoomStatus = "completed"
	RoomAbandoned RoomStatus = "abandoned"
)

// RoomPlayer is one roster entry.
type RoomPlayer struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	AvatarSeed  string    `json:"avatarSeed"`
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// RoomState is the pre-game roster for a room. It is owned exclusively by the
// room actor: created on first connection, marked abandoned when the last
// player leaves.
type RoomState struct {
	Code      string       `json:"code"`
	Config    RoomConfig   `json:"config"`
	Status    RoomStatus   `json:"status"`
	Players   []*RoomPlayer `json:"players"`
	HostID    string       `json:"hostId"`
	CreatedAt time.Time    `json:"createdAt"`
	StartedAt time.Time    `json:"startedAt"`
}

// NewRoomState returns a fresh waiting room.
func NewRoomState(code string, cfg RoomConfig, now time.Time) *RoomState {
	return &RoomState{
		Code:      code,
		Config:    cfg,
		Status:    RoomWaiting,
		CreatedAt: now,
	}
}

// Find returns the roster entry for a user, or nil.
func (r *RoomState) Find(userID string) *RoomPlayer {
	for _, p := range r.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// AddPlayer appends a roster entry. The first player becomes host.
func (r *RoomState) AddPlayer(p *RoomPlayer) {
	r.Players = append(r.Players, p)
	if r.HostID == "" {
		r.HostID = p.UserID
	}
}

// RemovePlayer drops a roster entry and reassigns the host to the next
// player in join order if the host left. Returns the new host id, or "" if
// the host did not change.
func (r *RoomState) RemovePlayer(userID string) string {
	idx := -1
	for i, p := range r.Players {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)

	if r.HostID != userID {
		return ""
	}
	r.HostID = ""
	if len(r.Players) > 0 {
		r.HostID = r.Players[0].UserID
		return r.HostID
	}
	return ""
}

// Full reports whether the roster is at capacity.
func (r *RoomState) Full() bool {
	return len(r.Players) >= r.Config.MaxPlayers
}
