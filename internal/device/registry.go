package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device mirror access with caching and thread safety.
// It wraps a Repository and adds in-memory indexes for the three lookup
// paths the bridge uses on its hot paths:
//
//   - vendor ID, for API requests and poll results
//   - MQTT object ID, for inbound command topics
//   - match key (serial:smap), for UDP push-status datagrams
//
// The cache is populated via RefreshCache() and kept in sync by
// write-through mutations. All public methods are thread-safe.
type Registry struct {
	repo       Repository
	byID       map[string]*Device
	byObjectID map[string]*Device
	byMatchKey map[string]*Device
	mu         sync.RWMutex
	logger     Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	r := &Registry{
		repo:   repo,
		logger: noopLogger{},
	}
	r.resetIndexes(0)
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetIndexes(len(devices))
	for i := range devices {
		r.index(devices[i].Clone())
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Get retrieves a device by vendor ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	// Fall back to the repository (might not be cached yet).
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.index(device.Clone())
	r.mu.Unlock()
	return device, nil
}

// GetByObjectID retrieves a device by its MQTT object identifier.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) GetByObjectID(ctx context.Context, objectID string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.byObjectID[objectID]
	r.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	device, err := r.repo.GetByObjectID(ctx, objectID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.index(device.Clone())
	r.mu.Unlock()
	return device, nil
}

// GetByMatchKey retrieves a device by its serial:smap push-routing key.
// Only the cache is consulted; push datagrams for unknown devices are
// expected and must not hit the database.
// Returns ErrDeviceNotFound if no cached device matches.
func (r *Registry) GetByMatchKey(matchKey string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.byMatchKey[matchKey]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return cached.Clone(), nil
}

// List returns all cached devices ordered as loaded, as copies.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.byID))
	for _, d := range r.byID {
		devices = append(devices, *d.Clone())
	}
	return devices
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Sync reconciles the mirror with a full cloud enumeration and rebuilds
// the cache. Returns the devices added and removed so the caller can
// publish and retract MQTT discovery.
func (r *Registry) Sync(ctx context.Context, devices []Device) (added, removed []Device, err error) {
	added, removed, err = r.repo.Sync(ctx, devices)
	if err != nil {
		return nil, nil, err
	}

	if err := r.RefreshCache(ctx); err != nil {
		return nil, nil, err
	}

	if len(added) > 0 || len(removed) > 0 {
		r.logger.Info("device mirror reconciled",
			"total", len(devices), "added", len(added), "removed", len(removed))
	}
	return added, removed, nil
}

// UpdateStatus persists a new raw status bitmask and updates the cache.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status uint32, seen time.Time) error {
	if err := r.repo.UpdateStatus(ctx, id, status, seen); err != nil {
		return err
	}

	r.mu.Lock()
	if d, ok := r.byID[id]; ok {
		d.Status = status
		t := seen.UTC()
		d.LastSeen = &t
	}
	r.mu.Unlock()
	return nil
}

// UpdateAvailability persists a new availability flag and updates the cache.
func (r *Registry) UpdateAvailability(ctx context.Context, id string, available bool) error {
	if err := r.repo.UpdateAvailability(ctx, id, available); err != nil {
		return err
	}

	r.mu.Lock()
	if d, ok := r.byID[id]; ok {
		d.Available = available
	}
	r.mu.Unlock()
	return nil
}

// index adds a device to all three lookup maps. Caller must hold mu.
func (r *Registry) index(d *Device) {
	r.byID[d.ID] = d
	r.byObjectID[d.ObjectID] = d
	r.byMatchKey[d.MatchKey()] = d
}

// resetIndexes replaces all lookup maps. Caller must hold mu (or own r).
func (r *Registry) resetIndexes(size int) {
	r.byID = make(map[string]*Device, size)
	r.byObjectID = make(map[string]*Device, size)
	r.byMatchKey = make(map[string]*Device, size)
}
