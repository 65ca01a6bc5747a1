// Package registry maintains the process-wide conference id -> Conference
// mapping. Grounded on the teacher's pathManager: the map is guarded by
// a mutex held only during the create/remove critical section, never
// during a conference's own mutating operations.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riftward/sfucore/internal/conference"
	"github.com/riftward/sfucore/internal/externalcmd"
	"github.com/riftward/sfucore/internal/hooks"
	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
	"github.com/riftward/sfucore/internal/workerpool"
)

// Parent is implemented by the signaling gateway; it receives
// notifications from every conference the registry creates.
type Parent interface {
	logger.Writer
	OnNotification(conference.Notification)
}

// Registry owns the conference map plus a counter of joins/leaves for
// Observability.
type Registry struct {
	pool                         *workerpool.Pool
	maxParticipants              int
	operationTimeout             time.Duration
	transportOptions             mediaengine.TransportOptions
	externalCmdPool              *externalcmd.Pool
	runOnConferenceCreate        string
	runOnConferenceCreateRestart bool
	runOnConferenceEmpty         string
	parent                       Parent

	mutex       sync.Mutex
	conferences map[string]*conference.Conference
	cleanupHooks map[string]func()

	joinsTotal  atomic.Uint64
	leavesTotal atomic.Uint64
}

// New creates an empty Registry.
func New(
	pool *workerpool.Pool,
	maxParticipants int,
	operationTimeout time.Duration,
	transportOptions mediaengine.TransportOptions,
	externalCmdPool *externalcmd.Pool,
	runOnConferenceCreate string,
	runOnConferenceCreateRestart bool,
	runOnConferenceEmpty string,
	parent Parent,
) *Registry {
	return &Registry{
		pool:                         pool,
		maxParticipants:              maxParticipants,
		operationTimeout:             operationTimeout,
		transportOptions:             transportOptions,
		externalCmdPool:              externalCmdPool,
		runOnConferenceCreate:        runOnConferenceCreate,
		runOnConferenceCreateRestart: runOnConferenceCreateRestart,
		runOnConferenceEmpty:         runOnConferenceEmpty,
		parent:                       parent,
		conferences:                  make(map[string]*conference.Conference),
		cleanupHooks:                 make(map[string]func()),
	}
}

// conferenceAdapter narrows Registry to conference.Parent, tagging
// notifications with the owning conference id and watching for
// emptiness without exposing Registry's own surface to Conference.
type conferenceAdapter struct {
	id       string
	registry *Registry
}

func (a conferenceAdapter) Log(level logger.Level, format string, args ...interface{}) {
	a.registry.parent.Log(level, "[conference %s] "+format, append([]interface{}{a.id}, args...)...)
}

func (a conferenceAdapter) OnNotification(n conference.Notification) {
	a.registry.parent.OnNotification(n)
}

func (a conferenceAdapter) OnEmpty(conferenceID string) {
	a.registry.removeIfEmpty(conferenceID)
}

// GetOrCreate returns the existing conference for id, or atomically
// creates one via WorkerPool.Acquire if absent. Acquire (which may call
// into the engine to build a router) runs with the registry lock
// released, so lookups of unrelated conferences never block on it; a
// second check under lock after Acquire avoids a duplicate conference
// if two joins race for the same new id.
func (r *Registry) GetOrCreate(ctx context.Context, id, name string) (*conference.Conference, error) {
	r.mutex.Lock()
	if c, ok := r.conferences[id]; ok {
		r.mutex.Unlock()
		return c, nil
	}
	r.mutex.Unlock()

	acq, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if c, ok := r.conferences[id]; ok {
		acq.Router.Close()
		return c, nil
	}

	c := conference.New(
		id,
		name,
		acq.Worker,
		acq.Router,
		r.maxParticipants,
		r.operationTimeout,
		r.transportOptions,
		conferenceAdapter{id: id, registry: r},
	)

	r.conferences[id] = c
	r.cleanupHooks[id] = hooks.OnConferenceCreate(hooks.OnConferenceCreateParams{
		Logger:                       r.parent,
		ExternalCmdPool:              r.externalCmdPool,
		RunOnConferenceCreate:        r.runOnConferenceCreate,
		RunOnConferenceCreateRestart: r.runOnConferenceCreateRestart,
		RunOnConferenceEmpty:         r.runOnConferenceEmpty,
		ConferenceID:                 id,
	})

	return c, nil
}

// UpdateHooks replaces the lifecycle hook commands applied to
// conferences created from now on, for configuration reload. Already
// running conferences keep whatever cleanup hook they were created
// with (OnConferenceCreate already captured the prior values in its
// closure).
func (r *Registry) UpdateHooks(runOnConferenceCreate string, runOnConferenceCreateRestart bool, runOnConferenceEmpty string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.runOnConferenceCreate = runOnConferenceCreate
	r.runOnConferenceCreateRestart = runOnConferenceCreateRestart
	r.runOnConferenceEmpty = runOnConferenceEmpty
}

// OperationTimeout returns the per-operation deadline new conferences
// are constructed with, so callers building a join-scoped context (e.g.
// SignalingGateway) can reuse the same budget for GetOrCreate.
func (r *Registry) OperationTimeout() time.Duration {
	return r.operationTimeout
}

// Get returns the conference for id, if any.
func (r *Registry) Get(id string) (*conference.Conference, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	c, ok := r.conferences[id]
	return c, ok
}

// removeIfEmpty removes and releases the conference for id if its
// participant map is empty at the moment the lock is acquired, avoiding
// resurrection races against a concurrent GetOrCreate.
func (r *Registry) removeIfEmpty(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	c, ok := r.conferences[id]
	if !ok {
		return
	}
	if c.ParticipantCount() > 0 {
		return
	}

	delete(r.conferences, id)
	cleanup := r.cleanupHooks[id]
	delete(r.cleanupHooks, id)

	c.Close()
	if cleanup != nil {
		cleanup()
	}
}

// ActiveConferences returns the number of live conferences, for
// Observability.
func (r *Registry) ActiveConferences() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.conferences)
}

// ActiveParticipants sums participant counts across every conference,
// for Observability.
func (r *Registry) ActiveParticipants() int {
	r.mutex.Lock()
	confs := make([]*conference.Conference, 0, len(r.conferences))
	for _, c := range r.conferences {
		confs = append(confs, c)
	}
	r.mutex.Unlock()

	total := 0
	for _, c := range confs {
		total += c.ParticipantCount()
	}
	return total
}

// RecordJoin increments the joins counter.
func (r *Registry) RecordJoin() {
	r.joinsTotal.Add(1)
}

// RecordLeave increments the leaves counter.
func (r *Registry) RecordLeave() {
	r.leavesTotal.Add(1)
}

// JoinsTotal returns the cumulative join count, for Observability.
func (r *Registry) JoinsTotal() uint64 {
	return r.joinsTotal.Load()
}

// LeavesTotal returns the cumulative leave count, for Observability.
func (r *Registry) LeavesTotal() uint64 {
	return r.leavesTotal.Load()
}

// Close releases every conference, for process shutdown.
func (r *Registry) Close() {
	r.mutex.Lock()
	confs := r.conferences
	r.conferences = make(map[string]*conference.Conference)
	cleanups := r.cleanupHooks
	r.cleanupHooks = make(map[string]func())
	r.mutex.Unlock()

	for _, c := range confs {
		c.Close()
	}
	for _, cleanup := range cleanups {
		cleanup()
	}
}
