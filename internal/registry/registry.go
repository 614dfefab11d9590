// Package registry implements the session registry (C4): the single
// globally shared mutable structure that tracks one Device Session per
// logically-connected GT06 terminal, indexed by session id, IMEI, and
// connection handle.
package registry

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"gt06gateway/internal/bus"
	"gt06gateway/internal/model"
)

// ConnectionCloser is implemented by the connection manager so the idle
// sweep can tear down a connection whose session it evicts.
type ConnectionCloser interface {
	CloseConnection(handle uint64)
}

// Stats summarizes the registry's current population.
type Stats struct {
	Total         int
	Authenticated int
	WithLocation  int
	Active        int
}

// Config carries the tunables this package names for the registry.
type Config struct {
	MaxSessions int
	IdleTimeout time.Duration
	SweepPeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 10000
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.SweepPeriod <= 0 {
		c.SweepPeriod = 5 * time.Minute
	}
	return c
}

// Registry is the session registry. All three indexes are mutated
// together under mu; shards stripe per-IMEI critical sections so writers
// for the same IMEI serialize (IMEIs that hash to the same stripe share
// it). Every writer also takes mu exclusively while it touches the maps.
type Registry struct {
	cfg    Config
	shards *shardLocks

	mu           sync.RWMutex
	byID         map[string]*model.DeviceSession
	byIMEI       map[string]*model.DeviceSession
	byConnection map[uint64]*model.DeviceSession

	closer    ConnectionCloser
	publisher bus.Publisher
	mirror    *RedisMirror

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New constructs an empty registry. closer and publisher may be nil; a
// nil publisher silently drops session events (useful in tests).
func New(cfg Config, closer ConnectionCloser, publisher bus.Publisher, mirror *RedisMirror) *Registry {
	if publisher == nil {
		publisher = bus.NoopPublisher{}
	}
	return &Registry{
		cfg:          cfg.withDefaults(),
		shards:       newShardLocks(),
		byID:         make(map[string]*model.DeviceSession),
		byIMEI:       make(map[string]*model.DeviceSession),
		byConnection: make(map[uint64]*model.DeviceSession),
		closer:       closer,
		publisher:    publisher,
		mirror:       mirror,
		stopSweep:    make(chan struct{}),
	}
}

// CreateOrRebind creates a new session for imei, or rebinds the existing
// one to a new connection handle.
func (r *Registry) CreateOrRebind(imei, remoteAddress string, connectionHandle uint64) (*model.DeviceSession, error) {
	lock := r.shards.lockFor(imei)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if existing, ok := r.byIMEI[imei]; ok {
		delete(r.byConnection, existing.ConnectionHandle)
		existing.ConnectionHandle = connectionHandle
		existing.RemoteAddress = remoteAddress
		existing.LastActivityAt = now
		existing.Authenticated = true
		r.byConnection[connectionHandle] = existing
		r.mirrorSet(existing)
		return existing.Clone(), nil
	}

	if len(r.byIMEI) >= r.cfg.MaxSessions {
		return nil, ErrCapacity
	}

	session := &model.DeviceSession{
		SessionID:        uuid.NewString(),
		IMEI:             imei,
		ConnectionHandle: connectionHandle,
		RemoteAddress:    remoteAddress,
		CreatedAt:        now,
		LastActivityAt:   now,
		Authenticated:    true,
		DeviceVariant:    model.UnknownVariant,
	}
	r.byID[session.SessionID] = session
	r.byIMEI[imei] = session
	r.byConnection[connectionHandle] = session
	r.mirrorSet(session)
	return session.Clone(), nil
}

// ByIMEI returns a copy of the session for imei, if any.
func (r *Registry) ByIMEI(imei string) (*model.DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byIMEI[imei]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// ByConnection returns a copy of the session bound to handle, if any.
func (r *Registry) ByConnection(handle uint64) (*model.DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byConnection[handle]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// ByID returns a copy of the session with the given session_id, if any.
func (r *Registry) ByID(id string) (*model.DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Touch refreshes last_activity_at for imei.
func (r *Registry) Touch(imei string) bool {
	lock := r.shards.lockFor(imei)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byIMEI[imei]
	if !ok {
		return false
	}
	s.LastActivityAt = time.Now()
	r.mirrorSet(s)
	return true
}

// UpdatePosition records the latest fix for imei and touches activity.
func (r *Registry) UpdatePosition(imei string, lat, lon float64, ts time.Time) bool {
	lock := r.shards.lockFor(imei)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byIMEI[imei]
	if !ok {
		return false
	}
	s.LastLatitude = &lat
	s.LastLongitude = &lon
	s.LastPositionAt = &ts
	s.LastActivityAt = time.Now()
	r.mirrorSet(s)
	return true
}

// StatusUpdate carries the optional status fields UpdateStatus accepts;
// a nil field is left unchanged.
type StatusUpdate struct {
	BatteryPercent *int
	Charging       *bool
	Ignition       *bool
	GSMSignalLevel *int
}

// UpdateStatus applies any non-nil fields in u to imei's session and
// touches activity.
func (r *Registry) UpdateStatus(imei string, u StatusUpdate) bool {
	lock := r.shards.lockFor(imei)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byIMEI[imei]
	if !ok {
		return false
	}
	if u.BatteryPercent != nil {
		s.BatteryPercent = u.BatteryPercent
	}
	if u.Charging != nil {
		s.Charging = u.Charging
	}
	if u.Ignition != nil {
		s.Ignition = u.Ignition
	}
	if u.GSMSignalLevel != nil {
		s.GSMSignalLevel = u.GSMSignalLevel
	}
	s.LastActivityAt = time.Now()
	r.mirrorSet(s)
	return true
}

// RemoveByConnection tears down the session bound to handle, if any, and
// returns it.
func (r *Registry) RemoveByConnection(handle uint64) (*model.DeviceSession, bool) {
	r.mu.Lock()
	s, ok := r.byConnection[handle]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	r.mu.Unlock()

	lock := r.shards.lockFor(s.IMEI)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok = r.byConnection[handle]
	if !ok {
		return nil, false
	}
	delete(r.byConnection, handle)
	delete(r.byIMEI, s.IMEI)
	delete(r.byID, s.SessionID)
	r.mirrorDelete(s.IMEI)
	return s.Clone(), true
}

// RemoveByIMEI tears down the session for imei, if any, and returns it.
// Calling it twice for the same IMEI is idempotent: the second call
// returns (nil, false).
func (r *Registry) RemoveByIMEI(imei string) (*model.DeviceSession, bool) {
	lock := r.shards.lockFor(imei)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byIMEI[imei]
	if !ok {
		return nil, false
	}
	delete(r.byIMEI, imei)
	delete(r.byConnection, s.ConnectionHandle)
	delete(r.byID, s.SessionID)
	r.mirrorDelete(imei)
	return s.Clone(), true
}

// All returns a snapshot copy of every session currently registered.
func (r *Registry) All() []*model.DeviceSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.DeviceSession, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s.Clone())
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// StatsSnapshot computes the aggregate counts this package names.
func (r *Registry) StatsSnapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var st Stats
	st.Total = len(r.byID)
	now := time.Now()
	for _, s := range r.byID {
		if s.Authenticated {
			st.Authenticated++
		}
		if s.LastLatitude != nil && s.LastLongitude != nil {
			st.WithLocation++
		}
		if now.Sub(s.LastActivityAt) < r.cfg.IdleTimeout {
			st.Active++
		}
	}
	return st
}

// Start launches the periodic idle sweep. Call Stop to end it.
func (r *Registry) Start() {
	go r.sweepLoop()
}

// Stop ends the idle sweep goroutine. Safe to call multiple times.
func (r *Registry) Stop() {
	r.sweepOnce.Do(func() { close(r.stopSweep) })
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.cfg.SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopSweep:
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

func (r *Registry) sweepIdle() {
	now := time.Now()
	var evicted []*model.DeviceSession

	r.mu.Lock()
	for imei, s := range r.byIMEI {
		if now.Sub(s.LastActivityAt) <= r.cfg.IdleTimeout {
			continue
		}
		delete(r.byIMEI, imei)
		delete(r.byConnection, s.ConnectionHandle)
		delete(r.byID, s.SessionID)
		evicted = append(evicted, s)
	}
	r.mu.Unlock()

	for _, s := range evicted {
		log.Printf("[registry] evicting idle session imei=%s last_activity=%s", s.IMEI, s.LastActivityAt)
		r.mirrorDelete(s.IMEI)
		if r.closer != nil {
			r.closer.CloseConnection(s.ConnectionHandle)
		}
		r.publisher.PublishSessionEvent(model.DeviceSessionEvent{
			IMEI:      s.IMEI,
			Kind:      model.SessionDisconnected,
			Timestamp: now,
		})
	}
}

func (r *Registry) mirrorSet(s *model.DeviceSession) {
	if r.mirror == nil {
		return
	}
	r.mirror.Set(s)
}

func (r *Registry) mirrorDelete(imei string) {
	if r.mirror == nil {
		return
	}
	r.mirror.Delete(imei)
}
