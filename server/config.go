package main

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"
)

// PlaneRole says what happens when the sphere touches an arena plane
type PlaneRole int

const (
	RoleWall        PlaneRole = 0 // sphere bounces
	RoleGoalPlayer1 PlaneRole = 1 // player 1 scores
	RoleGoalPlayer2 PlaneRole = 2 // player 2 scores
)

// ArenaPlane is one of the four static arena boundaries: n·p + Offset = 0
type ArenaPlane struct {
	Name   string
	Normal Vec3
	Offset float64
	Role   PlaneRole
}

// Axis returns the coordinate axis the plane's normal lies on
func (p ArenaPlane) Axis() int {
	axis := 0
	for i := 1; i < 3; i++ {
		if math.Abs(p.Normal[i]) > math.Abs(p.Normal[axis]) {
			axis = i
		}
	}
	return axis
}

// Coord returns where the plane crosses its own axis
func (p ArenaPlane) Coord() float64 {
	axis := p.Axis()
	return -p.Offset / p.Normal[axis]
}

// Profile holds every tunable of one arena geometry. Profiles are immutable once
// a match has been created with them.
type Profile struct {
	Name string

	// Planes are upper, lower, left, right, in that order
	Planes [4]ArenaPlane

	SphereRadius     float64
	InitialSpeed     float64
	MaxSpeed         float64
	SpeedIncrement   float64
	InitialDirection Vec3

	PaddleHome    [2]Vec3 // player 1, player 2
	PaddleHalf    Vec3
	PaddleNormals [2]Vec3 // outward face of each paddle
	PaddleAxis    int
	PaddleStep    float64
	// Keys maps a client key code to a direction along PaddleAxis
	Keys map[string]float64

	EndScore     int
	TickInterval time.Duration
	ScorePause   time.Duration
}

const (
	defaultEndScore     = 10
	defaultTickInterval = 10 * time.Millisecond
	defaultScorePause   = time.Second
)

func unit(v Vec3) Vec3 {
	n, _ := v.Normalize()
	return n
}

// ClassicProfile is the server-side geometry: goals across x, bounce walls
// across z, paddles sliding along z.
func ClassicProfile() Profile {
	const (
		groundLength = 6.0
		groundWidth  = 5.0
		barPosition  = 2.5
	)
	return Profile{
		Name: "classic",
		Planes: [4]ArenaPlane{
			{Name: "upper", Normal: Vec3{-1, 0, 0}, Offset: -groundLength / 2, Role: RoleGoalPlayer2},
			{Name: "lower", Normal: Vec3{1, 0, 0}, Offset: -groundLength / 2, Role: RoleGoalPlayer1},
			{Name: "left", Normal: Vec3{0, 0, -1}, Offset: -groundWidth / 2, Role: RoleWall},
			{Name: "right", Normal: Vec3{0, 0, 1}, Offset: -groundWidth / 2, Role: RoleWall},
		},
		SphereRadius:     0.04,
		InitialSpeed:     0.03,
		MaxSpeed:         0.06,
		SpeedIncrement:   0.005,
		InitialDirection: unit(Vec3{1, 0, 1}),
		PaddleHome:       [2]Vec3{{-barPosition, 0, 0}, {barPosition, 0, 0}},
		PaddleHalf:       Vec3{0.1 / 2, 0.08 / 2, 0.7 / 2},
		PaddleNormals:    [2]Vec3{{1, 0, 0}, {-1, 0, 0}},
		PaddleAxis:       2,
		PaddleStep:       0.05,
		Keys:             map[string]float64{"ArrowRight": 1, "ArrowLeft": -1},
		EndScore:         defaultEndScore,
		TickInterval:     defaultTickInterval,
		ScorePause:       defaultScorePause,
	}
}

// PlanarProfile is the browser client's geometry: goals across x, bounce walls
// across y, paddles sliding along y.
func PlanarProfile() Profile {
	const (
		groundLength = 6.0
		groundWidth  = 3.0
		barPosition  = 2.5
	)
	return Profile{
		Name: "planar",
		Planes: [4]ArenaPlane{
			{Name: "upper", Normal: Vec3{0, -1, 0}, Offset: groundWidth / 2, Role: RoleWall},
			{Name: "lower", Normal: Vec3{0, 1, 0}, Offset: groundWidth / 2, Role: RoleWall},
			{Name: "left", Normal: Vec3{1, 0, 0}, Offset: groundLength / 2, Role: RoleGoalPlayer2},
			{Name: "right", Normal: Vec3{-1, 0, 0}, Offset: groundLength / 2, Role: RoleGoalPlayer1},
		},
		SphereRadius:     0.04,
		InitialSpeed:     0.03,
		MaxSpeed:         0.06,
		SpeedIncrement:   0.005,
		InitialDirection: unit(Vec3{1, 1, 0}),
		PaddleHome:       [2]Vec3{{-barPosition, 0, 0}, {barPosition, 0, 0}},
		PaddleHalf:       Vec3{0.08 / 2, 0.7 / 2, 0.1 / 2},
		PaddleNormals:    [2]Vec3{{1, 0, 0}, {-1, 0, 0}},
		PaddleAxis:       1,
		PaddleStep:       0.05,
		Keys:             map[string]float64{"ArrowUp": 1, "ArrowDown": -1},
		EndScore:         defaultEndScore,
		TickInterval:     defaultTickInterval,
		ScorePause:       defaultScorePause,
	}
}

var profiles = map[string]func() Profile{
	"classic": ClassicProfile,
	"planar":  PlanarProfile,
}

// ProfileNames lists the registered profile names
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileByName returns a fresh copy of the named profile
func ProfileByName(name string) (Profile, error) {
	mk, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (have %v)", name, ProfileNames())
	}
	return mk(), nil
}

// Goal returns the plane that awards a point to player (1 or 2)
func (p *Profile) Goal(player int) (ArenaPlane, bool) {
	want := RoleGoalPlayer1
	if player == 2 {
		want = RoleGoalPlayer2
	}
	for _, pl := range p.Planes {
		if pl.Role == want {
			return pl, true
		}
	}
	return ArenaPlane{}, false
}

// PaddleWall returns the wall a paddle runs into when moving in direction dir
// along PaddleAxis.
func (p *Profile) PaddleWall(dir float64) (ArenaPlane, bool) {
	for _, pl := range p.Planes {
		if pl.Role != RoleWall || pl.Axis() != p.PaddleAxis {
			continue
		}
		if pl.Coord()*dir > 0 {
			return pl, true
		}
	}
	return ArenaPlane{}, false
}

// Validate reports settings that would make a match unplayable
func (p *Profile) Validate() error {
	if p.TickInterval <= 0 {
		return fmt.Errorf("profile %s: tick interval must be positive, got %v", p.Name, p.TickInterval)
	}
	if p.EndScore <= 0 {
		return fmt.Errorf("profile %s: end score must be positive, got %d", p.Name, p.EndScore)
	}
	if p.ScorePause < 0 {
		return fmt.Errorf("profile %s: score pause must not be negative, got %v", p.Name, p.ScorePause)
	}
	if p.InitialSpeed <= 0 || p.MaxSpeed < p.InitialSpeed {
		return fmt.Errorf("profile %s: bad speed range [%g, %g]", p.Name, p.InitialSpeed, p.MaxSpeed)
	}
	return nil
}

// GetEnv returns the value of the environment variable named by the key,
// or fallback if the variable is not set.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt is GetEnv for integers
func GetEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// GetEnvDuration is GetEnv for durations such as "10ms"
func GetEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
