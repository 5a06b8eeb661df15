package inspector

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxViews bounds the views a registry keeps open.
const DefaultMaxViews = 64

// Registry tracks open inspector views. Once the limit is reached, opening
// a view closes the oldest one.
type Registry struct {
	sessions   SessionSource
	newAPI     APIFactory
	sink       FactSink
	launchBase string

	mu    sync.RWMutex
	views map[string]*View
	order []string
	limit int
}

// NewRegistry creates a registry. sink may be nil; launchBase defaults to
// DefaultLaunchPath.
func NewRegistry(sessions SessionSource, newAPI APIFactory, sink FactSink, launchBase string) *Registry {
	if launchBase == "" {
		launchBase = DefaultLaunchPath
	}
	return &Registry{
		sessions:   sessions,
		newAPI:     newAPI,
		sink:       sink,
		launchBase: launchBase,
		views:      make(map[string]*View),
		limit:      DefaultMaxViews,
	}
}

// SetLimit changes how many views stay open. Values below 1 are ignored.
func (r *Registry) SetLimit(n int) {
	if n < 1 {
		return
	}
	r.mu.Lock()
	r.limit = n
	r.evictLocked()
	r.mu.Unlock()
}

// LaunchURL builds the inspector URL for params under the registry's base path.
func (r *Registry) LaunchURL(params Params) string {
	return LaunchURL(r.launchBase, params)
}

// Open registers a new view and loads it. Invalid parameters are rejected
// without registering anything; otherwise the view is returned even when
// loading fails so its Error state can be rendered.
func (r *Registry) Open(ctx context.Context, params Params) (*View, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	v := newView(uuid.New().String(), params, r.sessions, r.newAPI, r.sink, r.launchBase)

	r.mu.Lock()
	r.views[v.id] = v
	r.order = append(r.order, v.id)
	r.evictLocked()
	r.mu.Unlock()

	return v, v.Load(ctx)
}

func (r *Registry) evictLocked() {
	for len(r.order) > r.limit {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.views, oldest)
		log.Printf("[inspector:%s] evicted", oldest)
	}
}

// OpenLink opens the view an inspector link (such as a reference Row.Link) points to.
func (r *Registry) OpenLink(ctx context.Context, link string) (*View, error) {
	params, err := ParseLaunchURL(link)
	if err != nil {
		return nil, err
	}
	return r.Open(ctx, params)
}

func (r *Registry) Get(id string) (*View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	if !ok {
		return nil, ErrUnknownView
	}
	return v, nil
}

// Close forgets a view. Unsaved edits are discarded.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.views[id]
	if !ok {
		return false
	}
	delete(r.views, id)
	for i, open := range r.order {
		if open == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// ViewSummary is a registry listing entry.
type ViewSummary struct {
	ViewID string `json:"viewId"`
	Title  string `json:"title"`
	State  State  `json:"state"`
}

func (r *Registry) List() []ViewSummary {
	r.mu.RLock()
	out := make([]ViewSummary, 0, len(r.views))
	for id, v := range r.views {
		out = append(out, ViewSummary{ViewID: id, Title: v.params.Title(), State: v.State()})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}
