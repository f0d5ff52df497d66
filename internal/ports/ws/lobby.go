package ws

import (
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"dicee/internal/config"
	"dicee/internal/domain"
)

// RoomInfo is one public-room directory entry.
type RoomInfo struct {
	Code       string            `json:"code"`
	Status     domain.RoomStatus `json:"status"`
	Phase      domain.Phase      `json:"phase"`
	Players    int               `json:"players"`
	MaxPlayers int               `json:"maxPlayers"`
	Spectators int               `json:"spectators"`
	Round      int               `json:"round"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// UserPresence is one online user, deduplicated across their connections.
type UserPresence struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	AvatarSeed  string    `json:"avatarSeed"`
	OnlineSince time.Time `json:"onlineSince"`
}

// ChatMessage is one lobby chat line.
type ChatMessage struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	Ts          time.Time `json:"ts"`
}

// HighlightData announces a finished game to the lobby.
type HighlightData struct {
	RoomCode   string `json:"roomCode"`
	WinnerName string `json:"winnerName"`
	Total      int    `json:"total"`
}

// LobbyStateData is the snapshot sent to a freshly connected lobby client.
type LobbyStateData struct {
	Users []UserPresence `json:"users"`
	Rooms []RoomInfo     `json:"rooms"`
}

// Summary is the REST-facing lobby overview.
type Summary struct {
	OnlineUsers int `json:"onlineUsers"`
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	Playing     int `json:"playing"`
}

type lobbyMsg interface{ lobbyMsg() }

type lobbyConnMsg struct{ conn *Conn }
type lobbyFrameMsg struct {
	conn *Conn
	data []byte
}
type lobbyCloseMsg struct{ conn *Conn }
type lobbyRoomUpdateMsg struct{ info RoomInfo }
type lobbyRoomRemoveMsg struct{ code string }
type lobbyHighlightMsg struct{ h HighlightData }
type lobbyExpireMsg struct {
	code string
	at   time.Time
}
type lobbySummaryMsg struct{ reply chan Summary }
type lobbyRoomsMsg struct{ reply chan []RoomInfo }
type lobbyUsersMsg struct{ reply chan []UserPresence }

func (lobbyConnMsg) lobbyMsg()       {}
func (lobbyFrameMsg) lobbyMsg()      {}
func (lobbyCloseMsg) lobbyMsg()      {}
func (lobbyRoomUpdateMsg) lobbyMsg() {}
func (lobbyRoomRemoveMsg) lobbyMsg() {}
func (lobbyHighlightMsg) lobbyMsg()  {}
func (lobbyExpireMsg) lobbyMsg()     {}
func (lobbySummaryMsg) lobbyMsg()    {}
func (lobbyRoomsMsg) lobbyMsg()      {}
func (lobbyUsersMsg) lobbyMsg()      {}

// Lobby is the singleton actor behind every lobby connection. Presence is
// derived from live connections grouped by user id, never stored: a user with
// three tabs open appears once, and presence.left fires only when the last
// tab closes.
type Lobby struct {
	rules  config.Rules
	logger *slog.Logger
	now    func() time.Time

	inbox chan lobbyMsg
	done  chan struct{}

	conns  map[string]*Conn            // conn id -> conn
	byUser map[string]map[string]*Conn // user id -> conn id -> conn

	history   []ChatMessage
	chatTimes map[string][]time.Time

	directory map[string]RoomInfo
	expiresAt map[string]time.Time
}

// NewLobby constructs the lobby actor and starts its goroutine.
func NewLobby(rules config.Rules, logger *slog.Logger) *Lobby {
	l := &Lobby{
		rules:     rules,
		logger:    logger.With("actor", "lobby"),
		now:       time.Now,
		inbox:     make(chan lobbyMsg, 256),
		done:      make(chan struct{}),
		conns:     make(map[string]*Conn),
		byUser:    make(map[string]map[string]*Conn),
		chatTimes: make(map[string][]time.Time),
		directory: make(map[string]RoomInfo),
		expiresAt: make(map[string]time.Time),
	}
	go l.run()
	return l
}

// Attach hands a freshly upgraded connection to the actor and starts its pumps.
func (l *Lobby) Attach(c *Conn) {
	l.post(lobbyConnMsg{conn: c})
	c.run(
		func(c *Conn, data []byte) { l.post(lobbyFrameMsg{conn: c, data: data}) },
		func(c *Conn) { l.post(lobbyCloseMsg{conn: c}) },
	)
}

// UpdateRoom upserts a directory entry. A completed room stays visible for
// the configured grace, then expires.
func (l *Lobby) UpdateRoom(info RoomInfo) { l.post(lobbyRoomUpdateMsg{info: info}) }

// RemoveRoom schedules a directory entry's removal after the grace window.
func (l *Lobby) RemoveRoom(code string) { l.post(lobbyRoomRemoveMsg{code: code}) }

// Highlight broadcasts a finished-game announcement.
func (l *Lobby) Highlight(h HighlightData) { l.post(lobbyHighlightMsg{h: h}) }

// Stop shuts the actor down and closes every lobby connection.
func (l *Lobby) Stop() {
	close(l.done)
}

// Summarize returns the REST overview.
func (l *Lobby) Summarize() Summary {
	reply := make(chan Summary, 1)
	select {
	case l.inbox <- lobbySummaryMsg{reply: reply}:
	case <-l.done:
		return Summary{}
	}
	select {
	case s := <-reply:
		return s
	case <-l.done:
		return Summary{}
	}
}

// Rooms returns the sorted public-room directory.
func (l *Lobby) Rooms() []RoomInfo {
	reply := make(chan []RoomInfo, 1)
	select {
	case l.inbox <- lobbyRoomsMsg{reply: reply}:
	case <-l.done:
		return nil
	}
	select {
	case rooms := <-reply:
		return rooms
	case <-l.done:
		return nil
	}
}

// OnlineUsers returns the deduplicated presence list.
func (l *Lobby) OnlineUsers() []UserPresence {
	reply := make(chan []UserPresence, 1)
	select {
	case l.inbox <- lobbyUsersMsg{reply: reply}:
	case <-l.done:
		return nil
	}
	select {
	case users := <-reply:
		return users
	case <-l.done:
		return nil
	}
}

func (l *Lobby) post(msg lobbyMsg) {
	select {
	case l.inbox <- msg:
	case <-l.done:
	}
}

func (l *Lobby) run() {
	for {
		select {
		case msg := <-l.inbox:
			switch m := msg.(type) {
			case lobbyConnMsg:
				l.handleConnect(m.conn)
			case lobbyFrameMsg:
				l.handleFrame(m.conn, m.data)
			case lobbyCloseMsg:
				l.handleClose(m.conn)
			case lobbyRoomUpdateMsg:
				l.handleRoomUpdate(m.info)
			case lobbyRoomRemoveMsg:
				l.scheduleExpiry(m.code)
			case lobbyHighlightMsg:
				l.broadcast(NewEvent(EvtRoomHighlight, m.h))
			case lobbyExpireMsg:
				l.handleExpiry(m.code, m.at)
			case lobbySummaryMsg:
				m.reply <- l.summary()
			case lobbyRoomsMsg:
				m.reply <- l.sortedRooms()
			case lobbyUsersMsg:
				m.reply <- l.presenceList()
			}
		case <-l.done:
			for _, c := range l.conns {
				c.Close()
			}
			return
		}
	}
}

func (l *Lobby) handleConnect(c *Conn) {
	userID := c.identity.UserID
	l.conns[c.id] = c

	first := len(l.byUser[userID]) == 0
	if l.byUser[userID] == nil {
		l.byUser[userID] = make(map[string]*Conn)
	}
	l.byUser[userID][c.id] = c

	// Snapshot first, then history, so a new client renders in order.
	c.Send(NewEvent(EvtLobbyState, LobbyStateData{
		Users: l.presenceList(),
		Rooms: l.sortedRooms(),
	}))
	for _, m := range l.history {
		c.Send(NewEvent(EvtChatMessage, m))
	}

	if first {
		l.broadcast(NewEvent(EvtPresenceJoined, l.presenceOf(c)))
	}
}

func (l *Lobby) handleClose(c *Conn) {
	userID := c.identity.UserID
	delete(l.conns, c.id)

	userConns := l.byUser[userID]
	if userConns == nil {
		return
	}
	delete(userConns, c.id)
	if len(userConns) > 0 {
		return
	}
	delete(l.byUser, userID)
	delete(l.chatTimes, userID)
	l.broadcast(NewEvent(EvtPresenceLeft, map[string]string{"userId": userID}))
}

func (l *Lobby) handleFrame(c *Conn, data []byte) {
	cmd, werr := DecodeCommand(data)
	if werr != nil {
		c.SendError(EvtLobbyError, werr.Code, werr.Message)
		return
	}

	switch cmd.Type {
	case CmdChat:
		text, werr := ParseChat(cmd.Data)
		if werr != nil {
			c.SendError(EvtLobbyError, werr.Code, werr.Message)
			return
		}
		l.handleChat(c, text)
	case CmdGetRooms:
		c.Send(NewEvent(EvtRoomDirectory, map[string]any{"rooms": l.sortedRooms()}))
	default:
		c.SendError(EvtLobbyError, CodeUnknownCommand, "unknown command "+cmd.Type)
	}
}

func (l *Lobby) handleChat(c *Conn, text string) {
	userID := c.identity.UserID

	if utf8.RuneCountInString(text) > l.rules.ChatMaxLength {
		c.SendError(EvtLobbyError, CodeMessageTooLong, "message exceeds limit")
		return
	}
	if !l.allowChat(userID) {
		c.SendError(EvtLobbyError, CodeRateLimited, "too many messages, slow down")
		return
	}

	msg := ChatMessage{
		UserID:      userID,
		DisplayName: l.displayNameOf(c),
		Text:        text,
		Ts:          l.now().UTC(),
	}
	l.history = append(l.history, msg)
	if over := len(l.history) - l.rules.ChatHistoryLimit; over > 0 {
		l.history = l.history[over:]
	}
	l.broadcast(NewEvent(EvtChatMessage, msg))
}

// allowChat enforces the per-user sliding-window rate limit.
func (l *Lobby) allowChat(userID string) bool {
	now := l.now()
	cutoff := now.Add(-time.Minute)

	times := l.chatTimes[userID]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.rules.ChatPerMinute {
		l.chatTimes[userID] = kept
		return false
	}
	l.chatTimes[userID] = append(kept, now)
	return true
}

func (l *Lobby) handleRoomUpdate(info RoomInfo) {
	l.directory[info.Code] = info
	delete(l.expiresAt, info.Code)
	if info.Status == domain.RoomCompleted {
		l.scheduleExpiry(info.Code)
	}
	l.broadcast(NewEvent(EvtRoomDirectory, map[string]any{"rooms": l.sortedRooms()}))
}

// scheduleExpiry keeps a finished or emptied room listed for the grace window
// so lobby viewers see the final state before it disappears.
func (l *Lobby) scheduleExpiry(code string) {
	if _, ok := l.directory[code]; !ok {
		return
	}
	at := l.now().Add(time.Duration(l.rules.DirectoryGraceSeconds) * time.Second)
	l.expiresAt[code] = at
	time.AfterFunc(time.Until(at), func() {
		l.post(lobbyExpireMsg{code: code, at: at})
	})
}

func (l *Lobby) handleExpiry(code string, at time.Time) {
	// A later update or re-schedule supersedes this expiry.
	if want, ok := l.expiresAt[code]; !ok || !want.Equal(at) {
		return
	}
	delete(l.expiresAt, code)
	delete(l.directory, code)
	l.broadcast(NewEvent(EvtRoomDirectory, map[string]any{"rooms": l.sortedRooms()}))
}

// sortedRooms orders the directory for display: joinable rooms first, then by
// player count, then by recency.
func (l *Lobby) sortedRooms() []RoomInfo {
	rooms := make([]RoomInfo, 0, len(l.directory))
	for _, info := range l.directory {
		rooms = append(rooms, info)
	}
	sort.Slice(rooms, func(i, j int) bool {
		ri, rj := statusRank(rooms[i].Status), statusRank(rooms[j].Status)
		if ri != rj {
			return ri < rj
		}
		if rooms[i].Players != rooms[j].Players {
			return rooms[i].Players > rooms[j].Players
		}
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms
}

func statusRank(s domain.RoomStatus) int {
	switch s {
	case domain.RoomWaiting:
		return 0
	case domain.RoomStarting:
		return 1
	case domain.RoomPlaying:
		return 2
	case domain.RoomCompleted:
		return 3
	default:
		return 4
	}
}

func (l *Lobby) presenceList() []UserPresence {
	users := make([]UserPresence, 0, len(l.byUser))
	for _, conns := range l.byUser {
		var earliest *Conn
		for _, c := range conns {
			if earliest == nil || c.openedAt.Before(earliest.openedAt) {
				earliest = c
			}
		}
		if earliest != nil {
			users = append(users, l.presenceOf(earliest))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].OnlineSince.Before(users[j].OnlineSince) })
	return users
}

func (l *Lobby) presenceOf(c *Conn) UserPresence {
	return UserPresence{
		UserID:      c.identity.UserID,
		DisplayName: l.displayNameOf(c),
		AvatarSeed:  c.identity.AvatarSeed,
		OnlineSince: c.openedAt.UTC(),
	}
}

func (l *Lobby) displayNameOf(c *Conn) string {
	if c.identity.DisplayName != "" {
		return c.identity.DisplayName
	}
	return c.identity.UserID
}

func (l *Lobby) summary() Summary {
	playing := 0
	for _, info := range l.directory {
		if info.Status == domain.RoomPlaying {
			playing++
		}
	}
	return Summary{
		OnlineUsers: len(l.byUser),
		Connections: len(l.conns),
		Rooms:       len(l.directory),
		Playing:     playing,
	}
}

func (l *Lobby) broadcast(ev Event) {
	for _, c := range l.conns {
		c.Send(ev)
	}
}
