// Package conference groups call sessions that were merged together.
// Groups reference member call ids; they never own the sessions.
package conference

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSameCall    = errors.New("cannot merge a call with itself")
	ErrMissingCall = errors.New("call id is required")
)

// Group is a set of merged calls
type Group struct {
	ID        string    `json:"id"`
	Members   []string  `json:"members"`
	Merges    int       `json:"merges"`
	CreatedAt time.Time `json:"created_at"`
}

func (g *Group) clone() Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	return c
}

// Registry tracks groups and which group each call belongs to.
type Registry struct {
	mu       sync.RWMutex
	groups   map[string]*Group
	byMember map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		groups:   make(map[string]*Group),
		byMember: make(map[string]string),
	}
}

// Merge links first and second. If either already belongs to a group the
// other joins it; two existing groups are folded into the first one.
func (r *Registry) Merge(first, second string) (Group, error) {
	if first == "" || second == "" {
		return Group{}, ErrMissingCall
	}
	if first == second {
		return Group{}, ErrSameCall
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ga := r.groups[r.byMember[first]]
	gb := r.groups[r.byMember[second]]

	var g *Group
	switch {
	case ga != nil && gb != nil && ga != gb:
		for _, m := range gb.Members {
			r.add(ga, m)
		}
		ga.Merges += gb.Merges
		delete(r.groups, gb.ID)
		g = ga
	case ga != nil:
		g = ga
	case gb != nil:
		g = gb
	default:
		g = &Group{ID: uuid.NewString(), CreatedAt: time.Now()}
		r.groups[g.ID] = g
	}
	r.add(g, first)
	r.add(g, second)
	g.Merges++

	slog.Info("[Conference] Merged", "group", g.ID, "first", first, "second", second, "members", len(g.Members))
	return g.clone(), nil
}

func (r *Registry) add(g *Group, id string) {
	r.byMember[id] = g.ID
	if !slices.Contains(g.Members, id) {
		g.Members = append(g.Members, id)
	}
}

// GroupOf returns the group callID belongs to.
func (r *Registry) GroupOf(callID string) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[r.byMember[callID]]
	if !ok {
		return Group{}, false
	}
	return g.clone(), true
}

// Leave removes callID from its group. A group left with fewer than two
// members is dissolved.
func (r *Registry) Leave(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gid, ok := r.byMember[callID]
	if !ok {
		return
	}
	delete(r.byMember, callID)
	g := r.groups[gid]
	g.Members = slices.DeleteFunc(g.Members, func(m string) bool { return m == callID })
	if len(g.Members) < 2 {
		for _, m := range g.Members {
			delete(r.byMember, m)
		}
		delete(r.groups, gid)
		slog.Debug("[Conference] Dissolved", "group", gid)
	}
}

func (r *Registry) List() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g.clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = make(map[string]*Group)
	r.byMember = make(map[string]string)
}
