package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Transport is what the engine needs from the connection layer: push a message
// to one connection or to an explicit list of connections.
type Transport interface {
	Send(connID string, msg any)
	SendTo(connIDs []string, msg any)
}

type paddleInput struct {
	player int
	dir    float64
}

// Game runs the simulation of one match. All access to the MatchState goes
// through the Run goroutine: inputs, snapshot queries and ticks are serialised
// by a single select, so the state needs no lock.
type Game struct {
	id      string
	profile Profile
	state   *MatchState
	members []string // connection ids, player 1 first
	out     Transport
	stats   *Stats
	log     *log.Logger

	inputs  chan paddleInput
	queries chan chan Snapshot

	lifeMu   sync.Mutex
	cancel   context.CancelFunc // nil until Start
	done     chan struct{}
	finished atomic.Bool
	ticks    atomic.Uint64

	// onFinish runs on its own goroutine once the end score is reached
	onFinish func(g *Game, winner int)
}

// NewGame creates the match state for two connected members. The loop does not
// run until Start is called.
func NewGame(id string, p Profile, members [2]string, out Transport) *Game {
	return &Game{
		id:      id,
		profile: p,
		state:   NewMatchState(p),
		members: []string{members[0], members[1]},
		out:     out,
		log:     log.With("match", id),
		inputs:  make(chan paddleInput),
		queries: make(chan chan Snapshot),
		done:    make(chan struct{}),
	}
}

// Start launches the tick loop. Cancelling parent stops it as well.
func (g *Game) Start(parent context.Context) {
	g.lifeMu.Lock()
	defer g.lifeMu.Unlock()
	if g.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	go g.Run(ctx)
}

// Stop cancels the tick loop and waits until it has exited. After Stop returns
// no further tick can mutate state or broadcast.
func (g *Game) Stop() {
	g.lifeMu.Lock()
	cancel := g.cancel
	g.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-g.done
}

// Done is closed when the loop has exited
func (g *Game) Done() <-chan struct{} {
	return g.done
}

// Finished reports whether the match ended on score
func (g *Game) Finished() bool {
	return g.finished.Load()
}

// Ticks returns the number of simulation steps run so far
func (g *Game) Ticks() uint64 {
	return g.ticks.Load()
}

// Run is the tick loop. It returns when ctx is cancelled or a player reaches
// the end score.
func (g *Game) Run(ctx context.Context) {
	defer close(g.done)

	ticker := time.NewTicker(g.profile.TickInterval)
	defer ticker.Stop()

	g.log.Info("match started", "profile", g.profile.Name, "tick", g.profile.TickInterval)

	var resumeAt time.Time
	for {
		select {
		case <-ctx.Done():
			g.log.Debug("match loop cancelled", "ticks", g.ticks.Load())
			return

		case in := <-g.inputs:
			g.state.MovePaddle(in.player, in.dir)

		case reply := <-g.queries:
			reply <- g.state.Snapshot()

		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if now.Before(resumeAt) {
				continue
			}
			winner, scored := g.update()
			if winner != 0 {
				g.log.Info("match finished", "winner", winner, "scores", g.state.Scores)
				if g.onFinish != nil {
					go g.onFinish(g, winner)
				}
				return
			}
			if scored {
				resumeAt = now.Add(g.profile.ScorePause)
			}
		}
	}
}

// update runs one tick and broadcasts its results
func (g *Game) update() (winner int, scored bool) {
	res := g.state.Step()
	g.ticks.Add(1)

	if res.Scorer != 0 {
		g.log.Debug("point", "scorer", res.Scorer, "scores", g.state.Scores)
		g.stats.Track(EvtPoint, g.id)
		g.out.SendTo(g.members, NewScoresMsg(g.state.Scores[0], g.state.Scores[1]))
		if res.Winner != 0 {
			g.finished.Store(true)
			g.out.SendTo(g.members, NewGameOverMsg(res.Winner, DetailGameOver))
			return res.Winner, true
		}
	}

	g.out.SendTo(g.members, NewPositionsMsg(g.state.Snapshot()))
	return 0, res.Scorer != 0
}

// Input hands a paddle move to the loop. It blocks until the loop takes it and
// returns false if the loop has already exited.
func (g *Game) Input(player int, dir float64) bool {
	select {
	case g.inputs <- paddleInput{player: player, dir: dir}:
		return true
	case <-g.done:
		return false
	}
}

// Snapshot asks the loop for a copy of the current state. ok is false once the
// loop has exited.
func (g *Game) Snapshot() (s Snapshot, ok bool) {
	reply := make(chan Snapshot, 1)
	select {
	case g.queries <- reply:
		return <-reply, true
	case <-g.done:
		return Snapshot{}, false
	}
}
