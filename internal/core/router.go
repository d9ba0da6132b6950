package core

import "sync"

// group is the set of live sessions bound to one conversation. Each
// group carries its own lock so traffic on one conversation never
// contends with another.
type group struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

func (g *group) add(s *Session) {
	g.mu.Lock()
	g.sessions[s] = struct{}{}
	g.mu.Unlock()
}

func (g *group) remove(s *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[s]; !ok {
		return false
	}
	delete(g.sessions, s)
	return len(g.sessions) == 0
}

func (g *group) broadcast(ev *Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for session := range g.sessions {
		select {
		case session.Events <- ev:
		default:
			// Drop if slow consumer.
		}
	}
}

func (g *group) size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Router maps conversation identifiers to their live sessions and fans
// events out to them. Join and Leave are safe to call concurrently from
// independent connection lifecycles.
type Router struct {
	mu     sync.RWMutex
	groups map[string]*group
}

// NewRouter constructs an empty router.
func NewRouter() *Router {
	return &Router{groups: make(map[string]*group)}
}

// Join registers the session under its conversation. The add happens
// under the registry lock so a concurrent last-member Leave cannot
// delete the group between lookup and insertion.
func (r *Router) Join(conversationID string, s *Session) {
	r.mu.Lock()
	g := r.groups[conversationID]
	if g == nil {
		g = &group{sessions: make(map[*Session]struct{})}
		r.groups[conversationID] = g
	}
	g.add(s)
	r.mu.Unlock()
}

// Leave removes the session from its conversation's group. It is
// idempotent; the last session out drops the group entirely.
func (r *Router) Leave(conversationID string, s *Session) {
	r.mu.RLock()
	g := r.groups[conversationID]
	r.mu.RUnlock()
	if g == nil {
		return
	}

	if empty := g.remove(s); !empty {
		return
	}

	// Re-check under the write lock; a session may have joined between
	// remove and here.
	r.mu.Lock()
	if g == r.groups[conversationID] && g.size() == 0 {
		delete(r.groups, conversationID)
	}
	r.mu.Unlock()
}

// Broadcast delivers the event to every session currently registered for
// the conversation. Sessions whose buffers are full miss the event; the
// sender is never told either way.
func (r *Router) Broadcast(conversationID string, ev *Event) {
	r.mu.RLock()
	g := r.groups[conversationID]
	r.mu.RUnlock()
	if g == nil {
		return
	}
	g.broadcast(ev)
}

// Sessions reports how many sessions are registered for the conversation.
func (r *Router) Sessions(conversationID string) int {
	r.mu.RLock()
	g := r.groups[conversationID]
	r.mu.RUnlock()
	if g == nil {
		return 0
	}
	return g.size()
}
