package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"switchboard/focus"
	sberr "switchboard/internal/errors"
)

// Router is the slice of the focus router the registry drives on
// lifecycle transitions.  *focus.Router satisfies it.
type Router interface {
	ApplyAutoFocus(sessionID string, p focus.Policy, contextID string)
	HandleDeactivation(sessionID string)
}

// Stats aggregates the live session population by state and type.
type Stats struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"byState"`
	ByType  map[string]int `json:"byType"`
}

// Registry is the authoritative owner of all session instances.  It
// performs no I/O and never blocks: connection establishment happens
// in the caller against the transport collaborator, and the registry
// only consumes the outcome as lifecycle transitions.
//
// All methods are safe for concurrent use under a per-call lock.
type Registry struct {
	mu       sync.Mutex
	router   Router
	sessions map[string]*instance
}

// NewRegistry returns an empty registry driving the given router.
func NewRegistry(router Router) *Registry {
	return &Registry{
		router:   router,
		sessions: make(map[string]*instance),
	}
}

// CreateSession allocates a new session in the starting state (idle if
// cfg.Deferred) and returns its id.  Creation is total: it cannot
// fail, performs no validation against the transport, and never
// focuses anything — the auto-focus policy derived here is applied
// when the session transitions to running.
func (r *Registry) CreateSession(t Type, cfg Config) string {
	now := time.Now()
	in := &instance{
		id:             uuid.NewString(),
		typ:            t,
		state:          StateStarting,
		createdAt:      now,
		lastActivityAt: now,
		commands:       make([]string, 0, 8),
		stats:          make(map[string]StatValue),
		workingDir:     cfg.WorkingDir,
		policy:         PolicyFor(t, cfg),
		contextID:      cfg.ContextID,
	}
	if cfg.Deferred {
		in.state = StateIdle
	}
	if cfg.Profile != nil {
		p := *cfg.Profile
		in.profile = &p
	}

	r.mu.Lock()
	r.sessions[in.id] = in
	r.mu.Unlock()

	return in.id
}

// RecordCommand appends a command to the session's bounded recent log,
// increments its counter, and bumps last-activity.
func (r *Registry) RecordCommand(id, command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.sessions[id]
	if !ok {
		return &sberr.UnknownSessionError{ID: id}
	}
	in.recordCommand(command, time.Now())
	return nil
}

// Transition moves a session along the lifecycle graph
// (idle -> starting -> running -> stopping -> stopped, plus any state
// -> error).  Entering running applies the session's auto-focus
// policy; entering a terminal state purges its routing state via the
// router and removes the instance.  On failure the state is unchanged.
func (r *Registry) Transition(id string, next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.sessions[id]
	if !ok {
		return &sberr.UnknownSessionError{ID: id}
	}
	if !in.state.CanTransitionTo(next) {
		return &sberr.InvalidTransitionError{
			ID:   id,
			From: in.state.String(),
			To:   next.String(),
		}
	}

	in.state = next
	in.lastActivityAt = time.Now()

	switch {
	case next == StateRunning:
		r.router.ApplyAutoFocus(in.id, in.policy, in.contextID)
	case next.Terminal():
		r.router.HandleDeactivation(in.id)
		delete(r.sessions, id)
	}
	return nil
}

// Get returns a read-only snapshot of one session.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return in.snapshot(), true
}

// List returns snapshots of every live session, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.sessions))
	for _, in := range r.sessions {
		out = append(out, in.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SetStat records one typed statistic on a session.
func (r *Registry) SetStat(id, key string, v StatValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.sessions[id]
	if !ok {
		return &sberr.UnknownSessionError{ID: id}
	}
	in.stats[key] = v
	return nil
}

// SetWorkingDir updates a session's working directory as observed by
// the shell or the process sampler.
func (r *Registry) SetWorkingDir(id, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.sessions[id]
	if !ok {
		return &sberr.UnknownSessionError{ID: id}
	}
	in.workingDir = dir
	return nil
}

// Stats returns aggregate session counts by state and by type.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Total:   len(r.sessions),
		ByState: make(map[string]int),
		ByType:  make(map[string]int),
	}
	for _, in := range r.sessions {
		s.ByState[in.state.String()]++
		s.ByType[in.typ.String()]++
	}
	return s
}
