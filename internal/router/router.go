package router

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	ErrInvalidRoute         = errors.New("router: invalid route")
	ErrUnknownRoute         = errors.New("router: unknown route name")
	ErrMissingParam         = errors.New("router: missing route parameter")
	ErrEmptyPatch           = errors.New("router: location patch has neither name nor path")
	ErrNavigationAborted    = errors.New("router: navigation aborted by hook")
	ErrNavigationSuperseded = errors.New("router: navigation superseded by a newer one")
	ErrNoHistory            = errors.New("router: no history entry to go back to")
)

// Hook observes a transition before it completes. A non-nil error
// aborts the navigation.
type Hook func(Transition) error

type hookEntry struct {
	fn     Hook
	active bool
}

type hookList struct {
	entries []*hookEntry
}

func (l *hookList) add(mu *sync.Mutex, fn Hook) func() {
	entry := &hookEntry{fn: fn, active: true}
	mu.Lock()
	l.entries = append(l.entries, entry)
	mu.Unlock()
	return func() {
		mu.Lock()
		defer mu.Unlock()
		entry.active = false
		for i, candidate := range l.entries {
			if candidate == entry {
				l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
				break
			}
		}
	}
}

func (l *hookList) snapshot() []*hookEntry {
	out := make([]*hookEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

type mode int

const (
	modePush mode = iota
	modeReplace
	modePop
)

// Router is the host navigation system: a route table plus a history
// stack. Push appends an entry; Replace overwrites the current entry
// and never changes the history length.
type Router struct {
	mu           sync.Mutex
	routes       []compiledRoute
	entries      []Location
	index        int
	pending      uint64
	beforeEach   hookList
	beforeUpdate hookList
}

// New builds a router whose history starts at initial.
func New(initial string, routes ...Route) (*Router, error) {
	r := &Router{}
	for _, route := range routes {
		c, err := compile(route)
		if err != nil {
			return nil, err
		}
		r.routes = append(r.routes, c)
	}
	start, err := r.Resolve(LocationPatch{Path: initial})
	if err != nil {
		return nil, err
	}
	r.entries = []Location{start}
	return r, nil
}

// Resolve turns a patch into a Location against the route table. Paths
// that match no route resolve with an empty name.
func (r *Router) Resolve(p LocationPatch) (Location, error) {
	if p.IsZero() {
		return Location{}, ErrEmptyPatch
	}
	if strings.TrimSpace(p.Path) == "" {
		return r.resolveNamed(p)
	}

	u, err := url.Parse(strings.TrimSpace(p.Path))
	if err != nil {
		return Location{}, fmt.Errorf("router: parse path %q: %w", p.Path, err)
	}
	loc := Location{
		Path:   cleanPath(u.Path),
		Params: map[string]string{},
		Query:  u.Query(),
	}
	mergeQuery(loc.Query, p.Query)
	for _, route := range r.routes {
		if params, ok := route.match(loc.Path); ok {
			loc.Name = route.name
			loc.Params = params
			break
		}
	}
	return loc, nil
}

func (r *Router) resolveNamed(p LocationPatch) (Location, error) {
	for _, route := range r.routes {
		if route.name != strings.TrimSpace(p.Name) {
			continue
		}
		built, err := route.build(p.Params)
		if err != nil {
			return Location{}, err
		}
		params, _ := route.match(built)
		q := url.Values{}
		mergeQuery(q, p.Query)
		return Location{Name: route.name, Path: built, Params: params, Query: q}, nil
	}
	return Location{}, fmt.Errorf("%w: %q", ErrUnknownRoute, p.Name)
}

func mergeQuery(dst, src url.Values) {
	for k, vs := range src {
		dst[k] = append([]string(nil), vs...)
	}
}

func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[r.index]
}

// Len is the history length.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Router) Entries() []Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Location, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Router) Push(p LocationPatch) error {
	return r.navigate(p, modePush)
}

func (r *Router) Replace(p LocationPatch) error {
	return r.navigate(p, modeReplace)
}

// Back moves to the previous history entry, keeping forward entries.
func (r *Router) Back() error {
	r.mu.Lock()
	if r.index == 0 {
		r.mu.Unlock()
		return ErrNoHistory
	}
	to := r.entries[r.index-1]
	r.mu.Unlock()
	return r.transition(to, modePop)
}

// BeforeEach registers a hook run before every transition.
func (r *Router) BeforeEach(h Hook) func() {
	return r.beforeEach.add(&r.mu, h)
}

// BeforeUpdate registers a hook run before transitions that keep the
// same named route and change its path or query: the same logical screen
// re-rendered.
func (r *Router) BeforeUpdate(h Hook) func() {
	return r.beforeUpdate.add(&r.mu, h)
}

func (r *Router) navigate(p LocationPatch, m mode) error {
	to, err := r.Resolve(p)
	if err != nil {
		return err
	}
	return r.transition(to, m)
}

func (r *Router) transition(to Location, m mode) error {
	r.mu.Lock()
	from := r.entries[r.index]
	if to.Name == from.Name && to.FullPath() == from.FullPath() {
		r.mu.Unlock()
		return nil
	}
	r.pending++
	token := r.pending
	hooks := r.beforeEach.snapshot()
	if to.Name != "" && to.Name == from.Name {
		hooks = append(hooks, r.beforeUpdate.snapshot()...)
	}
	r.mu.Unlock()

	t := Transition{To: to, From: from}
	for _, h := range hooks {
		r.mu.Lock()
		active := h.active
		r.mu.Unlock()
		if !active {
			continue
		}
		if err := h.fn(t); err != nil {
			return fmt.Errorf("%w: %v", ErrNavigationAborted, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A navigation started while the hooks ran owns the history now.
	if token != r.pending {
		return ErrNavigationSuperseded
	}
	switch m {
	case modePush:
		r.entries = append(r.entries[:r.index+1], to)
		r.index++
	case modeReplace:
		r.entries[r.index] = to
	case modePop:
		r.index--
	}
	return nil
}
