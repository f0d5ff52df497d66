package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"dicee/internal/app"
	"dicee/internal/config"
	"dicee/internal/domain"
	"dicee/internal/store"
)

// directory is the lobby surface rooms publish to. A nil directory is valid
// for private rooms and tests.
type directory interface {
	UpdateRoom(info RoomInfo)
	RemoveRoom(code string)
	Highlight(h HighlightData)
}

// Leave reasons carried on player.left frames.
const (
	LeaveReasonLeft    = "left"
	LeaveReasonTimeout = "timeout"
)

type roomMsg interface{ roomMsg() }

type roomConnMsg struct{ conn *Conn }
type roomFrameMsg struct {
	conn *Conn
	data []byte
}
type roomCloseMsg struct{ conn *Conn }
type roomAlarmMsg struct{ alarm store.Alarm }
type roomSnapshotMsg struct{ reply chan []byte }

func (roomConnMsg) roomMsg()     {}
func (roomFrameMsg) roomMsg()    {}
func (roomCloseMsg) roomMsg()    {}
func (roomAlarmMsg) roomMsg()    {}
func (roomSnapshotMsg) roomMsg() {}

// RoomSnapshot is a point-in-time copy of the actor's observable state, used
// by the REST surface and tests.
type RoomSnapshot struct {
	Room        domain.RoomState `json:"room"`
	Game        domain.GameState `json:"game"`
	Connections int              `json:"connections"`
}

// Room is the per-room actor. Every mutation of its state happens on the run
// goroutine, which drains the inbox one message at a time; that serialization
// is what makes validate-then-mutate-then-persist race-free without locks.
type Room struct {
	code   string
	rules  config.Rules
	svc    *app.Service
	store  *store.Store
	dir    directory
	logger *slog.Logger

	inbox  chan roomMsg
	done   chan struct{}
	onStop func(code string)

	// tick scales configured seconds into real durations; tests shrink it.
	tick time.Duration

	conns  map[string]*Conn
	byUser map[string]*Conn

	state *domain.RoomState
	game  *domain.GameState

	alarm *store.Alarm
	timer *time.Timer
}

// NewRoom restores or creates the actor state for a room code and starts its
// goroutine. A persisted alarm is re-armed for its remaining duration; one
// already past due fires immediately.
func NewRoom(code string, rules config.Rules, cfg domain.RoomConfig, svc *app.Service, st *store.Store, dir directory, logger *slog.Logger, onStop func(string)) (*Room, error) {
	ctx := context.Background()

	roomState, err := st.LoadRoom(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		roomState = domain.NewRoomState(code, cfg, time.Now().UTC())
	} else if err != nil {
		return nil, err
	}

	game, err := st.LoadGame(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		game = domain.NewGameState(code, roomState.Config)
	} else if err != nil {
		return nil, err
	}

	r := &Room{
		code:   code,
		rules:  rules,
		svc:    svc,
		store:  st,
		dir:    dir,
		logger: logger.With("room", code),
		inbox:  make(chan roomMsg, 256),
		done:   make(chan struct{}),
		onStop: onStop,
		tick:   time.Second,
		conns:  make(map[string]*Conn),
		byUser: make(map[string]*Conn),
		state:  roomState,
		game:   game,
	}

	if alarm, err := st.GetAlarm(ctx, code); err == nil {
		r.alarm = &alarm
		r.armTimer(time.Until(alarm.DueAt))
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	go r.run()
	return r, nil
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

// Attach hands a freshly upgraded connection to the actor and starts its pumps.
func (r *Room) Attach(c *Conn) {
	r.post(roomConnMsg{conn: c})
	c.run(
		func(c *Conn, data []byte) { r.post(roomFrameMsg{conn: c, data: data}) },
		func(c *Conn) { r.post(roomCloseMsg{conn: c}) },
	)
}

// Snapshot returns the actor's state encoded as a RoomSnapshot JSON document,
// or false if the actor has stopped. Encoding happens on the actor goroutine;
// the returned bytes share nothing with the live state.
func (r *Room) Snapshot() ([]byte, bool) {
	reply := make(chan []byte, 1)
	select {
	case r.inbox <- roomSnapshotMsg{reply: reply}:
	case <-r.done:
		return nil, false
	}
	select {
	case snap := <-reply:
		return snap, snap != nil
	case <-r.done:
		return nil, false
	}
}

func (r *Room) snapshotJSON() []byte {
	data, err := json.Marshal(RoomSnapshot{
		Room:        *r.state,
		Game:        *r.game,
		Connections: len(r.conns),
	})
	if err != nil {
		r.logger.Error("marshal snapshot", "error", err)
		return nil
	}
	return data
}

func (r *Room) post(msg roomMsg) {
	select {
	case r.inbox <- msg:
	case <-r.done:
	}
}

func (r *Room) run() {
	for {
		select {
		case msg := <-r.inbox:
			switch m := msg.(type) {
			case roomConnMsg:
				r.handleConnect(m.conn)
			case roomFrameMsg:
				r.handleFrame(m.conn, m.data)
			case roomCloseMsg:
				r.handleClose(m.conn)
			case roomAlarmMsg:
				r.handleAlarm(m.alarm)
			case roomSnapshotMsg:
				m.reply <- r.snapshotJSON()
			}
		case <-r.done:
			return
		}
	}
}

func (r *Room) stop() {
	close(r.done)
	r.stopTimer()
	for _, c := range r.conns {
		c.Close()
	}
	if r.onStop != nil {
		r.onStop(r.code)
	}
}

// handleConnect registers the connection. A second connection from the same
// user replaces the first; known roster members are resynchronized, everyone
// else sees the roster and must send room.join.
func (r *Room) handleConnect(c *Conn) {
	userID := c.identity.UserID

	if old, ok := r.byUser[userID]; ok {
		delete(r.conns, old.id)
		old.Close()
	}
	r.conns[c.id] = c
	r.byUser[userID] = c

	rp := r.state.Find(userID)
	if rp == nil {
		c.Send(NewEvent(EvtRoomState, RoomStateData{Room: r.state}))
		// Game state goes only to members, or to anyone once spectating is on.
		if r.game.Phase != domain.PhaseWaiting && r.state.Config.AllowSpectators {
			c.Send(NewEvent(EvtStateSync, StateSyncData{State: r.game}))
		}
		return
	}

	wasConnected := rp.Connected
	rp.Connected = true
	r.svc.SetConnection(r.game, userID, domain.ConnOnline)

	// A pending grace removal for this user is moot now.
	if r.alarm != nil && r.alarm.Kind == store.AlarmRoomCleanup && r.alarm.TargetID == userID {
		r.clearAlarm()
	}

	r.saveRoom()
	r.saveGame()

	if !wasConnected {
		r.broadcast(NewEvent(EvtPlayerConnection, PlayerConnectionData{UserID: userID, IsConnected: true}))
	}
	c.Send(NewEvent(EvtRoomState, RoomStateData{Room: r.state}))
	c.Send(NewEvent(EvtStateSync, StateSyncData{State: r.game}))
}

func (r *Room) handleClose(c *Conn) {
	userID := c.identity.UserID
	if current, ok := r.byUser[userID]; !ok || current != c {
		// Replaced by a newer connection; nothing else to do.
		delete(r.conns, c.id)
		return
	}
	delete(r.conns, c.id)
	delete(r.byUser, userID)

	rp := r.state.Find(userID)
	if rp == nil {
		return
	}

	rp.Connected = false
	r.svc.SetConnection(r.game, userID, domain.ConnDisconnected)
	r.saveRoom()
	r.saveGame()
	r.broadcast(NewEvent(EvtPlayerConnection, PlayerConnectionData{UserID: userID, IsConnected: false}))

	// During active play the turn timers deal with an absent current player.
	// Outside it, give the player a grace window before removing them, unless
	// the slot is already committed to the start countdown.
	if !r.game.Phase.Active() && r.game.Phase != domain.PhaseStarting {
		r.schedule(store.AlarmRoomCleanup, userID, r.seconds(r.rules.DisconnectGraceSecs))
	}
}

func (r *Room) handleFrame(c *Conn, data []byte) {
	cmd, werr := DecodeCommand(data)
	if werr != nil {
		c.SendError(EvtGameError, werr.Code, werr.Message)
		return
	}

	userID := c.identity.UserID

	switch cmd.Type {
	case CmdRoomJoin:
		p, werr := ParseJoin(cmd.Data)
		if werr != nil {
			c.SendError(EvtGameError, werr.Code, werr.Message)
			return
		}
		r.handleJoin(c, p)
		return
	case CmdRoomLeave:
		r.handleLeave(c)
		return
	}

	// Everything below is a game command and requires roster membership.
	if r.state.Find(userID) == nil {
		c.SendError(EvtGameError, CodeNotAPlayer, "you are not a player in this room")
		return
	}

	switch cmd.Type {
	case CmdGameStart:
		r.handleStart(c)
	case CmdDiceRoll:
		kept, werr := ParseRoll(cmd.Data)
		if werr != nil {
			c.SendError(EvtGameError, werr.Code, werr.Message)
			return
		}
		events, err := r.svc.Roll(r.game, userID, kept)
		r.finishCommand(c, events, err, true)
	case CmdDiceKeep:
		indices, werr := ParseKeep(cmd.Data)
		if werr != nil {
			c.SendError(EvtGameError, werr.Code, werr.Message)
			return
		}
		events, err := r.svc.Keep(r.game, userID, indices)
		r.finishCommand(c, events, err, true)
	case CmdCategoryScore:
		category, werr := ParseScore(cmd.Data)
		if werr != nil {
			c.SendError(EvtGameError, werr.Code, werr.Message)
			return
		}
		events, err := r.svc.Score(r.game, userID, category)
		r.finishCommand(c, events, err, false)
	case CmdGameRematch:
		r.handleRematch(c)
	default:
		c.SendError(EvtGameError, CodeUnknownCommand, "unknown command "+cmd.Type)
	}
}

// finishCommand is the shared tail of the simple game commands: reply-only on
// rejection, persist-and-dispatch on success. Activity by the current player
// pushes the AFK window back out.
func (r *Room) finishCommand(c *Conn, events []app.Event, err error, activity bool) {
	if err != nil {
		r.sendDomainError(c, err)
		return
	}
	r.saveGame()
	r.dispatch(events)
	if activity && r.game.Phase.Active() {
		r.armTurnAlarm()
	}
}

func (r *Room) handleJoin(c *Conn, p JoinPayload) {
	userID := c.identity.UserID

	if r.state.Find(userID) != nil {
		// Already a member; treat as a resync request.
		c.Send(NewEvent(EvtRoomState, RoomStateData{Room: r.state}))
		c.Send(NewEvent(EvtStateSync, StateSyncData{State: r.game}))
		return
	}
	if r.state.Status == domain.RoomAbandoned {
		c.SendError(EvtGameError, CodeUnavailable, "room is closed")
		return
	}
	if r.game.Phase != domain.PhaseWaiting {
		if r.state.Config.AllowSpectators {
			c.spectator = true
			c.Send(NewEvent(EvtRoomState, RoomStateData{Room: r.state}))
			c.Send(NewEvent(EvtStateSync, StateSyncData{State: r.game}))
			return
		}
		c.SendError(EvtGameError, domain.CodeGameInProgress, "game already in progress")
		return
	}
	if r.state.Full() {
		c.SendError(EvtGameError, CodeRoomFull, "room is full")
		return
	}

	displayName := p.DisplayName
	if displayName == "" {
		displayName = c.identity.DisplayName
	}
	r.state.AddPlayer(&domain.RoomPlayer{
		UserID:      userID,
		DisplayName: displayName,
		AvatarSeed:  p.AvatarSeed,
		Connected:   true,
		JoinedAt:    time.Now().UTC(),
	})
	r.saveRoom()

	r.broadcast(NewEvent(EvtPlayerJoined, r.state.Find(userID)))
	r.broadcast(NewEvent(EvtRoomState, RoomStateData{Room: r.state}))
	r.pushDirectory()
}

func (r *Room) handleLeave(c *Conn) {
	userID := c.identity.UserID
	if r.state.Find(userID) == nil {
		return
	}

	// Leaving mid-game only marks the player absent; the turn timers skip
	// their turns so the game stays consistent for everyone else. The roster
	// entry goes once the game is over.
	if r.game.Phase.Active() || r.game.Phase == domain.PhaseStarting {
		r.handleClose(c)
		c.Close()
		return
	}

	r.removePlayer(userID, LeaveReasonLeft)
	c.Close()
}

// removePlayer drops a roster entry, reassigns the host, and abandons the
// room when it empties.
func (r *Room) removePlayer(userID, reason string) {
	newHost := r.state.RemovePlayer(userID)
	r.svcRemoveFromWaitingGame(userID)
	r.saveRoom()

	r.broadcast(NewEvent(EvtPlayerLeft, PlayerLeftData{UserID: userID, Reason: reason, NewHostID: newHost}))
	r.broadcast(NewEvent(EvtRoomState, RoomStateData{Room: r.state}))

	if len(r.state.Players) == 0 {
		r.abandon()
		return
	}
	r.pushDirectory()
}

// svcRemoveFromWaitingGame clears any pre-game player entry so a stale
// snapshot never resurrects a departed player.
func (r *Room) svcRemoveFromWaitingGame(userID string) {
	if r.game.Phase == domain.PhaseWaiting || r.game.Phase == domain.PhaseGameOver {
		delete(r.game.Players, userID)
		r.saveGame()
	}
}

func (r *Room) handleStart(c *Conn) {
	userID := c.identity.UserID

	events, err := r.svc.Start(r.game, userID, r.state.HostID, r.state.Players, r.rules.CountdownSeconds)
	if err != nil {
		r.sendDomainError(c, err)
		return
	}

	r.state.Status = domain.RoomStarting
	r.state.StartedAt = time.Now().UTC()
	r.saveRoom()
	r.saveGame()
	r.dispatch(events)
	r.schedule(store.AlarmGameStart, "", r.seconds(r.rules.CountdownSeconds))
	r.pushDirectory()
}

func (r *Room) handleRematch(c *Conn) {
	fresh, err := r.svc.Rematch(r.game, c.identity.UserID)
	if err != nil {
		r.sendDomainError(c, err)
		return
	}

	r.game = fresh
	r.state.Status = domain.RoomWaiting
	r.clearAlarm()
	r.saveGame()
	r.saveRoom()

	r.broadcast(NewEvent(EvtStateSync, StateSyncData{State: r.game}))
	r.broadcast(NewEvent(EvtRoomState, RoomStateData{Room: r.state}))
	r.pushDirectory()
}

// handleAlarm runs a fired alarm. The persisted slot is cleared first so a
// crash between firing and acting re-runs at most one alarm.
func (r *Room) handleAlarm(a store.Alarm) {
	if r.alarm == nil || r.alarm.Kind != a.Kind || r.alarm.TargetID != a.TargetID || !r.alarm.DueAt.Equal(a.DueAt) {
		return // superseded while in flight
	}
	r.clearAlarm()

	switch a.Kind {
	case store.AlarmGameStart:
		r.fireGameStart()
	case store.AlarmAFKWarning:
		r.fireAFKWarning(a.TargetID)
	case store.AlarmAFKTimeout:
		r.fireAFKTimeout(a.TargetID)
	case store.AlarmRoomCleanup:
		r.fireCleanup(a.TargetID)
	}
}

func (r *Room) fireGameStart() {
	// Abort back to waiting if the countdown outlived the quorum.
	connected := 0
	for _, p := range r.state.Players {
		if p.Connected {
			connected++
		}
	}
	if connected < domain.MinPlayersToStart {
		r.game.SetPhase(domain.PhaseWaiting)
		r.game.Players = make(map[string]*domain.PlayerGameState)
		r.state.Status = domain.RoomWaiting
		r.saveGame()
		r.saveRoom()
		r.broadcast(NewEvent(EvtStateSync, StateSyncData{State: r.game}))
		r.pushDirectory()
		return
	}

	events, err := r.svc.BeginTurns(r.game)
	if err != nil || events == nil {
		return
	}
	r.state.Status = domain.RoomPlaying
	r.saveGame()
	r.saveRoom()
	r.dispatch(events)
	r.pushDirectory()
}

func (r *Room) fireAFKWarning(target string) {
	if r.game.CurrentPlayerID() != target {
		return
	}
	if r.game.Phase != domain.PhaseTurnRoll && r.game.Phase != domain.PhaseTurnDecide {
		return
	}

	if p := r.game.Players[target]; p != nil && p.Connection == domain.ConnOnline {
		p.Connection = domain.ConnAway
	}
	r.saveGame()

	lead := r.rules.WarningLeadSeconds
	r.broadcast(NewEvent(EvtAFKWarning, AFKWarningData{UserID: target, SecondsRemaining: lead}))
	r.schedule(store.AlarmAFKTimeout, target, r.seconds(lead))
}

func (r *Room) fireAFKTimeout(target string) {
	reason := app.SkipTimeout
	if p := r.game.Players[target]; p != nil && p.Connection == domain.ConnDisconnected {
		reason = app.SkipDisconnect
	}

	events, err := r.svc.SkipTurn(r.game, target, reason)
	if err != nil {
		r.logger.Error("skip turn", "target", target, "error", err)
		return
	}
	if events == nil {
		return // the player acted before the alarm landed
	}
	r.saveGame()
	r.dispatch(events)
}

func (r *Room) fireCleanup(target string) {
	if target == "" {
		r.abandon()
		return
	}
	rp := r.state.Find(target)
	if rp == nil || rp.Connected {
		return
	}
	if r.game.Phase.Active() || r.game.Phase == domain.PhaseStarting {
		return
	}
	r.removePlayer(target, LeaveReasonTimeout)
}

func (r *Room) abandon() {
	r.state.Status = domain.RoomAbandoned
	r.saveRoom()
	r.clearAlarm()
	if r.dir != nil {
		r.dir.RemoveRoom(r.code)
	}
	r.logger.Info("room abandoned")
	r.stop()
}

// dispatch fans app events out to connections. Empty recipients means
// broadcast; a non-empty list is a targeted reply. Turn starts arm the AFK
// window for the incoming player, and a completed game is published to the
// lobby.
func (r *Room) dispatch(events []app.Event) {
	for _, ev := range events {
		wire, ok := GameEvent(ev)
		if !ok {
			continue
		}
		if len(ev.Recipients) == 0 {
			r.broadcast(wire)
		} else {
			for _, userID := range ev.Recipients {
				if c, ok := r.byUser[userID]; ok {
					c.Send(wire)
				}
			}
		}

		switch ev.Kind {
		case app.EventTurnStarted:
			r.armTurnAlarm()
		case app.EventGameCompleted:
			r.onGameCompleted(ev)
		}
	}
}

func (r *Room) onGameCompleted(ev app.Event) {
	r.state.Status = domain.RoomCompleted
	r.clearAlarm()
	r.saveRoom()
	r.pushDirectory()

	payload, ok := ev.Payload.(app.GameCompletedPayload)
	if !ok || len(payload.Rankings) == 0 || r.dir == nil || !r.state.Config.Public {
		return
	}
	winner := payload.Rankings[0]
	name := winner.UserID
	if p := r.game.Players[winner.UserID]; p != nil {
		name = p.DisplayName
	}
	r.dir.Highlight(HighlightData{
		RoomCode:   r.code,
		WinnerName: name,
		Total:      winner.Total,
	})
}

// armTurnAlarm schedules the AFK warning for the current player, measured
// from now. Any activity restarts the window.
func (r *Room) armTurnAlarm() {
	current := r.game.CurrentPlayerID()
	if current == "" {
		return
	}
	timeout := r.game.Config.TurnTimeoutSeconds
	if timeout <= 0 {
		timeout = r.rules.TurnTimeoutSeconds
	}
	lead := r.rules.WarningLeadSeconds
	if lead >= timeout {
		lead = 0
	}
	r.schedule(store.AlarmAFKWarning, current, r.seconds(timeout-lead))

	// Activity from the current player also clears the away flag.
	if p := r.game.Players[current]; p != nil && p.Connection == domain.ConnAway {
		p.Connection = domain.ConnOnline
	}
}

func (r *Room) sendDomainError(c *Conn, err error) {
	var terr *domain.TransitionError
	if errors.As(err, &terr) {
		c.SendError(EvtGameError, terr.Code, terr.Message)
		return
	}
	c.SendError(EvtGameError, CodeUnavailable, err.Error())
}

func (r *Room) broadcast(ev Event) {
	for _, c := range r.conns {
		c.Send(ev)
	}
}

func (r *Room) pushDirectory() {
	if r.dir == nil || !r.state.Config.Public {
		return
	}
	spectators := 0
	for _, c := range r.conns {
		if c.spectator {
			spectators++
		}
	}
	r.dir.UpdateRoom(RoomInfo{
		Code:       r.code,
		Status:     r.state.Status,
		Phase:      r.game.Phase,
		Players:    len(r.state.Players),
		MaxPlayers: r.state.Config.MaxPlayers,
		Spectators: spectators,
		Round:      r.game.RoundNumber,
		UpdatedAt:  time.Now().UTC(),
	})
}

// schedule replaces the room's pending alarm, durably then in memory.
func (r *Room) schedule(kind store.AlarmKind, target string, d time.Duration) {
	a := store.Alarm{
		RoomCode: r.code,
		Kind:     kind,
		TargetID: target,
		DueAt:    time.Now().UTC().Add(d),
	}
	if err := r.store.SetAlarm(context.Background(), a); err != nil {
		r.logger.Error("persist alarm", "kind", kind, "error", err)
	}
	r.alarm = &a
	r.armTimer(d)
}

func (r *Room) armTimer(d time.Duration) {
	r.stopTimer()
	if d < 0 {
		d = 0
	}
	alarm := *r.alarm
	r.timer = time.AfterFunc(d, func() {
		r.post(roomAlarmMsg{alarm: alarm})
	})
}

func (r *Room) clearAlarm() {
	if r.alarm == nil {
		return
	}
	r.alarm = nil
	r.stopTimer()
	if err := r.store.ClearAlarm(context.Background(), r.code); err != nil {
		r.logger.Error("clear alarm", "error", err)
	}
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) seconds(n int) time.Duration {
	return time.Duration(n) * r.tick
}

func (r *Room) saveGame() {
	if err := r.store.SaveGame(context.Background(), r.game); err != nil {
		r.logger.Error("persist game", "error", err)
	}
}

func (r *Room) saveRoom() {
	if err := r.store.SaveRoom(context.Background(), r.state); err != nil {
		r.logger.Error("persist room", "error", err)
	}
}
