package main

import (
	"sync"
	"time"
)

// Event types for stats tracking
const (
	EvtConnOpen       = "conn_open"
	EvtConnClose      = "conn_close"
	EvtMatchStart     = "match_start"
	EvtMatchEnd       = "match_end"       // end score reached
	EvtMatchAbandoned = "match_abandoned" // a participant left mid-match
	EvtPoint          = "point"
)

// StatsEvent is a single trackable event
type StatsEvent struct {
	Type      string
	MatchID   string
	Timestamp time.Time
}

// StatsSnapshot is the JSON body of /stats
type StatsSnapshot struct {
	ConnectedPeers   int       `json:"connected_peers"`
	ActiveMatches    int       `json:"active_matches"`
	WaitingMatches   int       `json:"waiting_matches"`
	MatchesStarted   int       `json:"matches_started"`
	MatchesCompleted int       `json:"matches_completed"`
	MatchesAbandoned int       `json:"matches_abandoned"`
	PointsScored     int       `json:"points_scored"`
	DroppedEvents    int       `json:"dropped_events"`
	StartedAt        time.Time `json:"started_at"`
}

// Stats aggregates events in memory on a background goroutine so the match
// loops never wait on it. Nothing is persisted.
type Stats struct {
	events chan StatsEvent
	stop   chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	counters  StatsSnapshot
	dropped   int
	droppedMu sync.Mutex
}

// NewStats creates and starts the aggregator
func NewStats() *Stats {
	s := &Stats{
		events: make(chan StatsEvent, 1024),
		stop:   make(chan struct{}),
	}
	s.counters.StartedAt = time.Now().UTC()
	s.wg.Add(1)
	go s.aggregate()
	return s
}

// Track enqueues an event (non-blocking). A nil *Stats ignores everything.
func (s *Stats) Track(evtType, matchID string) {
	if s == nil {
		return
	}
	select {
	case s.events <- StatsEvent{Type: evtType, MatchID: matchID, Timestamp: time.Now().UTC()}:
	default:
		// Channel full, drop rather than block a match loop
		s.droppedMu.Lock()
		s.dropped++
		s.droppedMu.Unlock()
	}
}

// SetWaitingMatches updates the live count of matches with one participant
func (s *Stats) SetWaitingMatches(n int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.counters.WaitingMatches = n
	s.mu.Unlock()
}

// Snapshot returns the current counters
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	snap := s.counters
	s.mu.RUnlock()
	s.droppedMu.Lock()
	snap.DroppedEvents = s.dropped
	s.droppedMu.Unlock()
	return snap
}

// Stop drains pending events and shuts the aggregator down
func (s *Stats) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Stats) aggregate() {
	defer s.wg.Done()
	for {
		select {
		case evt := <-s.events:
			s.apply(evt)
		case <-s.stop:
			for {
				select {
				case evt := <-s.events:
					s.apply(evt)
				default:
					return
				}
			}
		}
	}
}

func (s *Stats) apply(evt StatsEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &s.counters
	switch evt.Type {
	case EvtConnOpen:
		c.ConnectedPeers++
	case EvtConnClose:
		c.ConnectedPeers--
	case EvtMatchStart:
		c.MatchesStarted++
		c.ActiveMatches++
	case EvtMatchEnd:
		c.MatchesCompleted++
		c.ActiveMatches--
	case EvtMatchAbandoned:
		c.MatchesAbandoned++
		c.ActiveMatches--
	case EvtPoint:
		c.PointsScored++
	}
}
