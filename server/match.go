package main

// MatchPhase represents the lifecycle of a match
type MatchPhase int

const (
	PhaseAwaiting   MatchPhase = 0 // one participant, no simulation
	PhaseRunning    MatchPhase = 1
	PhaseTerminated MatchPhase = 2
)

func (p MatchPhase) String() string {
	switch p {
	case PhaseAwaiting:
		return "awaiting_second_player"
	case PhaseRunning:
		return "running"
	case PhaseTerminated:
		return "terminated"
	}
	return "unknown"
}

// Sphere is the ball. Box always equals Pos ± radius; it is moved by the same
// deltas as Pos rather than rebuilt.
type Sphere struct {
	Pos   Vec3
	Dir   Vec3 // unit length
	Speed float64
	Box   Box
}

// Paddle is one player's bar
type Paddle struct {
	Pos Vec3
	Box Box
}

// MatchState is the authoritative simulation state of one match. It is owned by
// a single goroutine and is not safe for concurrent use.
type MatchState struct {
	profile Profile
	Sphere  Sphere
	Paddles [2]Paddle
	Scores  [2]int
}

// TickResult describes what the collision pass of one tick did
type TickResult struct {
	Scorer    int    // player who scored this tick, 0 if none
	Winner    int    // player who reached the end score, 0 if none
	Wall      string // name of the wall the sphere bounced off
	PaddleHit int    // player whose paddle returned the sphere
}

// Snapshot is a copy of the state that can leave the owning goroutine
type Snapshot struct {
	Sphere    Vec3
	Direction Vec3
	Speed     float64
	Paddles   [2]Vec3
	Scores    [2]int
}

// NewMatchState creates a match with the sphere at the arena center and both
// paddles at their home positions.
func NewMatchState(p Profile) *MatchState {
	m := &MatchState{profile: p}
	for i := range m.Paddles {
		m.Paddles[i] = Paddle{
			Pos: p.PaddleHome[i],
			Box: BoxAround(p.PaddleHome[i], p.PaddleHalf),
		}
	}
	m.resetSphere()
	return m
}

func (m *MatchState) resetSphere() {
	r := m.profile.SphereRadius
	m.Sphere = Sphere{
		Pos:   Vec3{},
		Dir:   m.profile.InitialDirection,
		Speed: m.profile.InitialSpeed,
		Box:   BoxAround(Vec3{}, Vec3{r, r, r}),
	}
}

// Step runs the collision pass and, unless a point was scored, advances the
// sphere by one tick.
func (m *MatchState) Step() TickResult {
	res := m.collide()
	if res.Scorer == 0 {
		m.advance()
	}
	return res
}

// collide checks goals, walls and paddles in that order. The first hit wins.
func (m *MatchState) collide() TickResult {
	var res TickResult
	s := &m.Sphere

	for player := 1; player <= 2; player++ {
		goal, ok := m.profile.Goal(player)
		if !ok || !BoxPlaneOverlap(s.Box, goal.Normal, goal.Offset) {
			continue
		}
		m.Scores[player-1]++
		m.resetSphere()
		res.Scorer = player
		if m.Scores[player-1] >= m.profile.EndScore {
			res.Winner = player
		}
		return res
	}

	for _, wall := range m.profile.Planes {
		if wall.Role != RoleWall || !BoxPlaneOverlap(s.Box, wall.Normal, wall.Offset) {
			continue
		}
		// Still overlapping after last tick's bounce: already heading away.
		if s.Dir[wall.Axis()]*wall.Coord() <= 0 {
			continue
		}
		s.Dir = Reflect(s.Dir, wall.Normal)
		res.Wall = wall.Name
		return res
	}

	for i := range m.Paddles {
		pd := &m.Paddles[i]
		normal := m.profile.PaddleNormals[i]
		if !BoxBoxOverlap(s.Box, pd.Box) || s.Dir.Dot(normal) >= 0 {
			continue
		}
		dir, ok := ReflectOffPaddle(s.Pos, normal, pd.Pos)
		if !ok {
			dir = Reflect(s.Dir, normal)
		}
		s.Dir = dir
		s.Speed = min(s.Speed+m.profile.SpeedIncrement, m.profile.MaxSpeed)
		res.PaddleHit = i + 1
		return res
	}
	return res
}

func (m *MatchState) advance() {
	d := m.Sphere.Dir.Scale(m.Sphere.Speed)
	m.Sphere.Pos = m.Sphere.Pos.Add(d)
	m.Sphere.Box = m.Sphere.Box.Translate(d)
}

// MovePaddle moves player's paddle one step in direction dir (+1 or -1) along
// the profile's paddle axis. The move is rejected, leaving the paddle where it
// was, when the moved box would touch the wall on that side.
func (m *MatchState) MovePaddle(player int, dir float64) bool {
	if player < 1 || player > 2 || dir == 0 {
		return false
	}
	pd := &m.Paddles[player-1]
	var delta Vec3
	delta[m.profile.PaddleAxis] = dir * m.profile.PaddleStep

	moved := pd.Box.Translate(delta)
	if wall, ok := m.profile.PaddleWall(dir); ok && BoxPlaneOverlap(moved, wall.Normal, wall.Offset) {
		return false
	}
	pd.Pos = pd.Pos.Add(delta)
	pd.Box = moved
	return true
}

// Snapshot copies the current state
func (m *MatchState) Snapshot() Snapshot {
	return Snapshot{
		Sphere:    m.Sphere.Pos,
		Direction: m.Sphere.Dir,
		Speed:     m.Sphere.Speed,
		Paddles:   [2]Vec3{m.Paddles[0].Pos, m.Paddles[1].Pos},
		Scores:    m.Scores,
	}
}

// KeyDirection maps a client key code to a paddle direction. ok is false for
// keys the profile does not bind.
func (p *Profile) KeyDirection(keycode string) (dir float64, ok bool) {
	dir, ok = p.Keys[keycode]
	return dir, ok
}
