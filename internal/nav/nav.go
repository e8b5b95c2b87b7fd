// Package nav defines application routes and the single Navigator that
// owns the current one.
package nav

import (
	"sync"

	"go.uber.org/zap"
)

// Route is an application location.
type Route string

const (
	Home      Route = "/"
	Login     Route = "/login"
	Register  Route = "/register"
	Dashboard Route = "/dashboard"
	Map       Route = "/map"
	Messages  Route = "/messages"
)

// DeviceDetail is the route of one owned device.
func DeviceDetail(id string) Route { return Route("/dashboard/devices/" + id) }

// Navigator changes the current route.
type Navigator interface {
	Navigate(to Route)
	Current() Route
}

// Router is the application's Navigator. It keeps a history so callers
// can tell how often a route was entered.
type Router struct {
	mu        sync.Mutex
	current   Route
	history   []Route
	listeners []func(from, to Route)
	log       *zap.Logger
}

var _ Navigator = (*Router)(nil)

// NewRouter starts at start.
func NewRouter(start Route, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{current: start, log: log}
}

// Navigate moves to to and notifies listeners.
func (r *Router) Navigate(to Route) {
	r.mu.Lock()
	from := r.current
	r.current = to
	r.history = append(r.history, to)
	ls := append([]func(from, to Route){}, r.listeners...)
	r.mu.Unlock()

	r.log.Debug("navigate", zap.String("from", string(from)), zap.String("to", string(to)))
	for _, fn := range ls {
		fn(from, to)
	}
}

// Current returns the current route.
func (r *Router) Current() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// History returns every route navigated to, oldest first.
func (r *Router) History() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Route(nil), r.history...)
}

// Count returns how many times to was navigated to.
func (r *Router) Count(to Route) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.history {
		if h == to {
			n++
		}
	}
	return n
}

// OnChange registers fn to run after every navigation.
func (r *Router) OnChange(fn func(from, to Route)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}
