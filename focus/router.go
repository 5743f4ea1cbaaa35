// Package focus owns the answer to "which session has keyboard input".
//
// A Router tracks at most one focused session plus a mapping from
// conversation contexts to the session each one drives.  Routing is
// advisory: focus may reference a session that is still starting or
// already gone, and every binding operation degrades to a no-op when
// the reference is missing.  Consistency with the session lifecycle
// comes from the cleanup hooks (HandleDeactivation, CleanupContext),
// not from validation at mutation time.
//
// Every observable transition is published on an eventbus.Bus so the
// UI and input layers can react without polling.
package focus

import (
	"fmt"
	"sync"

	"switchboard/eventbus"
)

// Policy captures the auto-focus flags derived from a session's type
// and configuration.
type Policy struct {
	// RequiresInput marks interactive sessions.  They seize focus
	// unconditionally when they come up.
	RequiresInput bool

	// IsPersistent marks long-lived background sessions.  They fill an
	// empty focus slot but never steal an occupied one.
	IsPersistent bool
}

// Snapshot is an immutable copy of the router state for diagnostics.
type Snapshot struct {
	FocusedSession string            `json:"focusedSession,omitempty"`
	Bindings       map[string]string `json:"contextBindings"`
	Count          int               `json:"count"`
}

// Router is the sole authority on input focus.  All methods are safe
// for concurrent use; each takes the state lock for the duration of
// the call only, and none block (event publishing is non-blocking by
// the bus contract).
type Router struct {
	mu       sync.Mutex
	focused  string            // empty = unfocused
	bindings map[string]string // context id -> session id
	bus      *eventbus.Bus
}

// NewRouter returns an unfocused router publishing on bus.
func NewRouter(bus *eventbus.Bus) *Router {
	return &Router{
		bindings: make(map[string]string),
		bus:      bus,
	}
}

// Focus unconditionally makes sessionID the focused session.  The
// session is not required to exist yet; focus may be granted before a
// session finishes starting.  A focusChanged event is always emitted,
// carrying the previous focus in its message.  contextID is forwarded
// on the event for observability and does not touch the bindings.
func (r *Router) Focus(sessionID, contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focusLocked(sessionID, contextID)
}

// ClearFocus leaves the router unfocused.  An event is emitted only if
// a focus existed before the call.
func (r *Router) ClearFocus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearFocusLocked()
}

// IsFocused reports whether sessionID currently holds focus.
func (r *Router) IsFocused(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focused == sessionID
}

// BindContext routes contextID's input to sessionID.  The upsert is
// idempotent and last-write-wins.  Binding to an empty session id is
// rejected as a no-op: bindings never reference a null session.
func (r *Router) BindContext(contextID, sessionID string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[contextID] = sessionID
}

// UnbindContext removes contextID's binding if present.
func (r *Router) UnbindContext(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, contextID)
}

// UnbindSession removes every context binding that points at
// sessionID, independent of current focus.
func (r *Router) UnbindSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindSessionLocked(sessionID)
}

// ApplyAutoFocus decides whether a newly running session should take
// focus without explicit user action.  Priority order: sessions that
// require input always focus; persistent sessions focus only into an
// empty slot; everything else leaves focus alone.
func (r *Router) ApplyAutoFocus(sessionID string, p Policy, contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case p.RequiresInput:
		r.focusLocked(sessionID, contextID)
	case p.IsPersistent && r.focused == "":
		r.focusLocked(sessionID, contextID)
	}
}

// HandleDeactivation purges all routing state for a session leaving
// service: every binding to it is removed, focus is cleared if (and
// only if) it held focus, and exactly one blockDeactivated event is
// emitted regardless — observers need a definitive signal even for
// sessions that never had focus.
func (r *Router) HandleDeactivation(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unbindSessionLocked(sessionID)
	if r.focused == sessionID {
		r.clearFocusLocked()
	}
	r.bus.PublishBlockDeactivated(sessionID, "session deactivated")
}

// CleanupContext tears down a context: its binding is removed, and
// focus is cleared only when the focused session is the one the
// context was bound to.  Focus held by unrelated sessions survives.
func (r *Router) CleanupContext(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bound, ok := r.bindings[contextID]
	if !ok {
		return
	}
	delete(r.bindings, contextID)
	if r.focused == bound {
		r.clearFocusLocked()
	}
}

// Snapshot returns a copy of the router state.  The returned map is
// owned by the caller.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	bindings := make(map[string]string, len(r.bindings))
	for c, s := range r.bindings {
		bindings[c] = s
	}
	return Snapshot{
		FocusedSession: r.focused,
		Bindings:       bindings,
		Count:          len(bindings),
	}
}

// Reset clears all state unconditionally and emits nothing.  A bulk
// reset is a hard reinitialization, not an observable transition.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focused = ""
	r.bindings = make(map[string]string)
}

// ── locked internals ─────────────────────────────────────────────────

func (r *Router) focusLocked(sessionID, contextID string) {
	prev := r.focused
	r.focused = sessionID
	r.bus.PublishFocusChanged(sessionID, contextID, previousLabel(prev))
}

func (r *Router) clearFocusLocked() {
	if r.focused == "" {
		return
	}
	prev := r.focused
	r.focused = ""
	r.bus.PublishFocusChanged("", "", previousLabel(prev))
}

func (r *Router) unbindSessionLocked(sessionID string) {
	for c, s := range r.bindings {
		if s == sessionID {
			delete(r.bindings, c)
		}
	}
}

func previousLabel(prev string) string {
	if prev == "" {
		return "previous: none"
	}
	return fmt.Sprintf("previous: %s", prev)
}
