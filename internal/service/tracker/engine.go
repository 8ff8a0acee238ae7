package tracker

import "github.com/oshokin/bus-tracker/internal/repository/location"

// Engine bundles the session registry and the emergency broadcaster.
type Engine struct {
	*Registry
	*Broadcaster
}

// New wires an engine. When deps.Store can be read it also serves
// as the emergency fallback for vehicles without a remembered fix.
func New(deps Dependencies, opts Options) (*Engine, error) {
	registry, err := NewRegistry(deps, opts)
	if err != nil {
		return nil, err
	}

	reader, _ := registry.store.(location.Reader)

	return &Engine{
		Registry:    registry,
		Broadcaster: NewBroadcaster(registry, reader),
	}, nil
}
