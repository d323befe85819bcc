package main

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
)

const maxPlayersPerMatch = 2

// Session is one pairing slot: its ordered participants and, once the second
// player has joined, the running Game.
type Session struct {
	ID        string
	CreatedAt time.Time
	members   []string // connection ids, player 1 first
	game      *Game
	phase     MatchPhase
}

// SessionInfo is a read-only view of a session
type SessionInfo struct {
	ID      string   `json:"id"`
	Phase   string   `json:"phase"`
	Members []string `json:"members"`
	Ticks   uint64   `json:"ticks"`
}

// SessionManager pairs connections into matches first come, first served and
// owns every match's lifecycle. Its mutex guards only the registry; match state
// is owned by each Game's loop.
type SessionManager struct {
	mu      sync.Mutex
	order   []*Session // creation order
	byConn  map[string]*Session
	out     Transport
	profile Profile
	stats   *Stats

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSessionManager creates an empty registry. Every match it starts uses
// profile and sends through out.
func NewSessionManager(out Transport, profile Profile, stats *Stats) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		byConn:  make(map[string]*Session),
		out:     out,
		profile: profile,
		stats:   stats,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Join assigns connID to the first match with a free slot, creating one if
// needed, and tells the connection its player number. The second join starts
// the match loop. Joining twice returns the existing assignment.
func (sm *SessionManager) Join(connID string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sess, ok := sm.byConn[connID]; ok {
		return lo.IndexOf(sess.members, connID) + 1
	}

	sess, ok := lo.Find(sm.order, func(s *Session) bool {
		return s.phase == PhaseAwaiting && len(s.members) < maxPlayersPerMatch
	})
	if !ok {
		sess = &Session{
			ID:        GenerateUUID(),
			CreatedAt: time.Now(),
			phase:     PhaseAwaiting,
		}
		sm.order = append(sm.order, sess)
	}
	sess.members = append(sess.members, connID)
	sm.byConn[connID] = sess

	player := len(sess.members)
	sm.out.Send(connID, NewPlayerNumMsg(player))
	log.Debug("paired", "conn", connID, "match", sess.ID, "player", player)

	if player == maxPlayersPerMatch {
		sess.game = NewGame(sess.ID, sm.profile, [2]string{sess.members[0], sess.members[1]}, sm.out)
		sess.game.stats = sm.stats
		sess.game.onFinish = sm.finish
		sess.phase = PhaseRunning
		sess.game.Start(sm.ctx)
		sm.stats.Track(EvtMatchStart, sess.ID)
	}
	sm.stats.SetWaitingMatches(sm.waitingLocked())
	return player
}

// Leave removes connID from its match. Leaving a running match that has not
// reached the end score awards it to the other player. Either way the loop is
// stopped before the match is dropped from the registry.
func (sm *SessionManager) Leave(connID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess, ok := sm.byConn[connID]
	if !ok {
		return
	}
	player := lo.IndexOf(sess.members, connID) + 1

	if sess.game != nil {
		sess.game.Stop()
	}
	delete(sm.byConn, connID)
	sess.members = lo.Without(sess.members, connID)

	if sess.phase == PhaseRunning && !sess.game.Finished() {
		winner := maxPlayersPerMatch + 1 - player
		sm.out.SendTo(sess.members, NewGameOverMsg(winner, DetailDisconnected))
		sm.stats.Track(EvtMatchAbandoned, sess.ID)
		log.Info("match abandoned", "match", sess.ID, "left", player, "winner", winner)
	}
	sm.removeLocked(sess)
}

// HandleInput applies a keydown from connID to its match. Anything that does
// not map to a paddle move of the sender's own paddle is dropped.
func (sm *SessionManager) HandleInput(connID string, msg InMessage) {
	sm.mu.Lock()
	sess, ok := sm.byConn[connID]
	if !ok || sess.phase != PhaseRunning {
		sm.mu.Unlock()
		return
	}
	player := lo.IndexOf(sess.members, connID) + 1
	game := sess.game
	sm.mu.Unlock()

	if msg.PlayerNum != 0 && msg.PlayerNum != player {
		return
	}
	dir, ok := sm.profile.KeyDirection(msg.Keycode)
	if !ok {
		return
	}
	game.Input(player, dir)
}

// finish is called by a Game that reached the end score
func (sm *SessionManager) finish(g *Game, winner int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess, ok := lo.Find(sm.order, func(s *Session) bool { return s.game == g })
	if !ok {
		// a participant left first and already tore the match down
		return
	}
	sm.stats.Track(EvtMatchEnd, sess.ID)
	sm.out.SendTo(sess.members, NewDisconnectMsg(ReasonMatchComplete))
	sm.removeLocked(sess)
}

// removeLocked drops sess and its remaining members from the registry
func (sm *SessionManager) removeLocked(sess *Session) {
	for _, m := range sess.members {
		delete(sm.byConn, m)
	}
	sess.phase = PhaseTerminated
	sm.order = lo.Without(sm.order, sess)
	sm.stats.SetWaitingMatches(sm.waitingLocked())
}

func (sm *SessionManager) waitingLocked() int {
	return lo.CountBy(sm.order, func(s *Session) bool { return s.phase == PhaseAwaiting })
}

// Shutdown stops every match loop and tells every paired connection its
// session is gone.
func (sm *SessionManager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, sess := range sm.order {
		if sess.game != nil {
			sess.game.Stop()
			if !sess.game.Finished() {
				sm.stats.Track(EvtMatchAbandoned, sess.ID)
			}
		}
		sm.out.SendTo(sess.members, NewDisconnectMsg(ReasonServerShutdown))
		for _, m := range sess.members {
			delete(sm.byConn, m)
		}
		sess.phase = PhaseTerminated
	}
	sm.order = nil
	sm.cancel()
}

// Lookup returns the match id and player number of connID
func (sm *SessionManager) Lookup(connID string) (matchID string, player int, ok bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess, ok := sm.byConn[connID]
	if !ok {
		return "", 0, false
	}
	return sess.ID, lo.IndexOf(sess.members, connID) + 1, true
}

// Game returns the running game of a match, if any
func (sm *SessionManager) Game(matchID string) (*Game, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess, ok := lo.Find(sm.order, func(s *Session) bool { return s.ID == matchID })
	if !ok || sess.game == nil {
		return nil, false
	}
	return sess.game, true
}

// ListSessions returns info about all live sessions in creation order
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return lo.Map(sm.order, func(s *Session, _ int) SessionInfo {
		info := SessionInfo{
			ID:      s.ID,
			Phase:   s.phase.String(),
			Members: append([]string(nil), s.members...),
		}
		if s.game != nil {
			info.Ticks = s.game.Ticks()
		}
		return info
	})
}
