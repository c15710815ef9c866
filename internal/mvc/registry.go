package mvc

import "sync"

// Canonical controller names. Controllers register themselves under a
// compile-time-known name so one controller can reach another without a
// direct reference.
const (
	ControllerLibrary   = "library"
	ControllerPlaylist  = "playlist"
	ControllerScrobbles = "scrobbles"
)

// Controller is anything registered under a canonical name.
type Controller interface {
	Name() string
}

// TrackCacheInvalidator is implemented by controllers that cache track
// rows and must be told when metadata changes underneath them.
type TrackCacheInvalidator interface {
	InvalidateTrackCache()
}

// Registry is the shared controller registry.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]Controller
}

func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]Controller)}
}

// Register inserts the controller under its name.
func (r *Registry) Register(controller Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[controller.Name()] = controller
}

// Lookup returns the controller registered under name.
func (r *Registry) Lookup(name string) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	controller, ok := r.controllers[name]
	return controller, ok
}
