// Package session owns the set of live session instances: their
// lifecycle state machine, activity metadata, and command history.
// The Registry is the single authority on which sessions exist and
// drives the focus router on lifecycle transitions; nothing else may
// hold or mutate an instance.
package session

import (
	"encoding/json"
	"time"

	"switchboard/focus"
)

// Type classifies how a session runs its work.
type Type int

const (
	// TypeLocal is a command session backed by a local child process.
	TypeLocal Type = iota
	// TypeRemoteShell is a command session over an SSH connection.
	TypeRemoteShell
	// TypeSocket is a raw byte-stream session over a TCP or unix socket.
	TypeSocket
)

var typeNames = map[Type]string{
	TypeLocal:       "local",
	TypeRemoteShell: "remote-shell",
	TypeSocket:      "socket",
}

var typeFromName = map[string]Type{
	"local":        TypeLocal,
	"remote-shell": TypeRemoteShell,
	"socket":       TypeSocket,
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := typeFromName[s]; ok {
		*t = v
	}
	return nil
}

// ParseType maps a wire/config name onto a Type.
func ParseType(s string) (Type, bool) {
	t, ok := typeFromName[s]
	return t, ok
}

// State is a session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateError
)

var stateNames = map[State]string{
	StateIdle:     "idle",
	StateStarting: "starting",
	StateRunning:  "running",
	StateStopping: "stopping",
	StateStopped:  "stopped",
	StateError:    "error",
}

var stateFromName = map[string]State{
	"idle":     StateIdle,
	"starting": StateStarting,
	"running":  StateRunning,
	"stopping": StateStopping,
	"stopped":  StateStopped,
	"error":    StateError,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

// ParseState maps a wire name onto a State.
func ParseState(s string) (State, bool) {
	v, ok := stateFromName[s]
	return v, ok
}

// allowedNext is the forward edge of the lifecycle graph.  Error is
// reachable from every state and handled separately.
var allowedNext = map[State]State{
	StateIdle:     StateStarting,
	StateStarting: StateRunning,
	StateRunning:  StateStopping,
	StateStopping: StateStopped,
}

// CanTransitionTo reports whether the lifecycle graph permits moving
// from s to next.
func (s State) CanTransitionTo(next State) bool {
	if next == StateError {
		return true
	}
	return allowedNext[s] == next
}

// Terminal reports whether a session in this state is done and due
// for removal.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}

// ── typed session statistics ─────────────────────────────────────────

// StatKind discriminates the closed set of value kinds a session
// statistic may hold.
type StatKind int

const (
	StatInt StatKind = iota
	StatFloat
	StatString
	StatBool
	StatDuration
)

// StatValue is a single typed statistic.  Only the field matching
// Kind is meaningful.
type StatValue struct {
	Kind  StatKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Dur   time.Duration
}

// IntStat wraps an integer statistic.
func IntStat(n int64) StatValue { return StatValue{Kind: StatInt, Int: n} }

// FloatStat wraps a floating-point statistic.
func FloatStat(f float64) StatValue { return StatValue{Kind: StatFloat, Float: f} }

// StringStat wraps a string statistic.
func StringStat(s string) StatValue { return StatValue{Kind: StatString, Str: s} }

// BoolStat wraps a boolean statistic.
func BoolStat(b bool) StatValue { return StatValue{Kind: StatBool, Bool: b} }

// DurationStat wraps a duration statistic.
func DurationStat(d time.Duration) StatValue { return StatValue{Kind: StatDuration, Dur: d} }

// MarshalJSON emits the bare underlying value, so sessionStats
// serializes as a plain JSON object.
func (v StatValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case StatInt:
		return json.Marshal(v.Int)
	case StatFloat:
		return json.Marshal(v.Float)
	case StatString:
		return json.Marshal(v.Str)
	case StatBool:
		return json.Marshal(v.Bool)
	case StatDuration:
		return json.Marshal(v.Dur.String())
	}
	return json.Marshal(nil)
}

// ── profile reference ────────────────────────────────────────────────

// ProfileRef is the sanitized remote-profile reference attached to
// remote sessions.  It never carries credential material; the full
// profile stays with the transport collaborator.
type ProfileRef struct {
	Name string `json:"name"`
	Host string `json:"host"`
	User string `json:"user"`
	Port int    `json:"port"`
}

// ── creation config ──────────────────────────────────────────────────

// Config carries the creation-time settings the registry keeps for a
// session.  Interactive and Persistent override the type-derived
// auto-focus flags when non-nil.
type Config struct {
	Interactive *bool
	Persistent  *bool

	// ContextID optionally names the conversation this session should
	// route when auto-focus fires.
	ContextID string

	// Deferred allocates the session in idle instead of starting, for
	// sessions registered ahead of connection establishment.
	Deferred bool

	WorkingDir string
	Profile    *ProfileRef
}

// PolicyFor derives the auto-focus flags for a session: command
// sessions expect keyboard input, socket streams are long-lived but
// non-interactive.  Explicit config flags win over the type default.
func PolicyFor(t Type, cfg Config) focus.Policy {
	var p focus.Policy
	switch t {
	case TypeLocal, TypeRemoteShell:
		p.RequiresInput = true
	case TypeSocket:
		p.IsPersistent = true
	}
	if cfg.Interactive != nil {
		p.RequiresInput = *cfg.Interactive
	}
	if cfg.Persistent != nil {
		p.IsPersistent = *cfg.Persistent
	}
	return p
}

// ── instance ─────────────────────────────────────────────────────────

// commandLogCap bounds the recent-command log; the oldest entry is
// evicted first.
const commandLogCap = 50

// instance is the registry-private record for one live session.
type instance struct {
	id             string
	typ            Type
	state          State
	createdAt      time.Time
	lastActivityAt time.Time
	commands       []string
	commandCount   int
	stats          map[string]StatValue
	workingDir     string
	profile        *ProfileRef
	policy         focus.Policy
	contextID      string
}

func (in *instance) recordCommand(command string, now time.Time) {
	in.commandCount++
	in.commands = append(in.commands, command)
	if len(in.commands) > commandLogCap {
		in.commands = in.commands[1:]
	}
	in.lastActivityAt = now
}

// Snapshot is the read-only copy of an instance handed to callers and
// serialized for diagnostics/UI.
type Snapshot struct {
	ID                string               `json:"id"`
	Type              Type                 `json:"type"`
	State             State                `json:"state"`
	CreatedAt         time.Time            `json:"createdAt"`
	LastActivityAt    time.Time            `json:"lastActivityAt"`
	CommandCount      int                  `json:"commandCount"`
	RecentCommands    []string             `json:"recentCommands"`
	WorkingDirectory  *string              `json:"currentWorkingDirectory"`
	SessionStats      map[string]StatValue `json:"sessionStats"`
	Profile           *ProfileRef          `json:"profile"`
}

func (in *instance) snapshot() Snapshot {
	commands := make([]string, len(in.commands))
	copy(commands, in.commands)

	stats := make(map[string]StatValue, len(in.stats))
	for k, v := range in.stats {
		stats[k] = v
	}

	var wd *string
	if in.workingDir != "" {
		d := in.workingDir
		wd = &d
	}

	var profile *ProfileRef
	if in.profile != nil {
		p := *in.profile
		profile = &p
	}

	return Snapshot{
		ID:               in.id,
		Type:             in.typ,
		State:            in.state,
		CreatedAt:        in.createdAt,
		LastActivityAt:   in.lastActivityAt,
		CommandCount:     in.commandCount,
		RecentCommands:   commands,
		WorkingDirectory: wd,
		SessionStats:     stats,
		Profile:          profile,
	}
}
