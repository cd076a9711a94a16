package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/webnexifystudio/nexa/pkg/audio/device"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Devices is the microphone and speaker pair of one device backend.
type Devices struct {
	Microphone device.Microphone
	Speaker    device.Speaker
}

// Registry maps provider and device backend names to their constructor
// functions. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	s2s     map[string]func(ProviderConfig) (s2s.Provider, error)
	devices map[string]func(AudioConfig) (Devices, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		s2s:     make(map[string]func(ProviderConfig) (s2s.Provider, error)),
		devices: make(map[string]func(AudioConfig) (Devices, error)),
	}
}

// RegisterS2S registers a speech-to-speech provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterS2S(name string, factory func(ProviderConfig) (s2s.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s2s[name] = factory
}

// RegisterDevices registers a device backend factory under name.
func (r *Registry) RegisterDevices(name string, factory func(AudioConfig) (Devices, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// CreateS2S instantiates the provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateS2S(entry ProviderConfig) (s2s.Provider, error) {
	r.mu.RLock()
	factory, ok := r.s2s[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: s2s/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDevices instantiates the device backend registered under backend.
func (r *Registry) CreateDevices(backend string, cfg AudioConfig) (Devices, error) {
	r.mu.RLock()
	factory, ok := r.devices[backend]
	r.mu.RUnlock()
	if !ok {
		return Devices{}, fmt.Errorf("%w: devices/%q", ErrProviderNotRegistered, backend)
	}
	return factory(cfg)
}

// S2SNames returns the registered provider names, sorted.
func (r *Registry) S2SNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.s2s))
	for n := range r.s2s {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
