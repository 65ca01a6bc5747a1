// Package workerpool owns the set of media-engine workers and assigns
// a worker+router pair to each new conference using a cost metric.
package workerpool

import (
	"context"
	"sort"
	"sync"

	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
)

type parent interface {
	logger.Writer
}

// Acquisition is the worker+router pair returned by Acquire.
type Acquisition struct {
	Worker mediaengine.Worker
	Router mediaengine.Router
}

// Pool owns every worker created at startup and selects among them.
type Pool struct {
	cpuWeight    float64
	routerWeight float64
	codecs       []mediaengine.CodecParameters
	parent       parent

	mutex   sync.Mutex
	workers []mediaengine.Worker
	// quarantined mirrors worker.Closed() so selection never blocks on a
	// channel read; watchQuarantine sets a worker's entry when its Closed
	// channel fires.
	quarantined map[string]bool
}

// New creates workerCount workers from engine, each pre-loaded with
// codecs, and returns a Pool selecting among them with the given cost
// weights.
func New(
	ctx context.Context,
	engine mediaengine.Engine,
	workerCount int,
	codecs []mediaengine.CodecParameters,
	cpuWeight float64,
	routerWeight float64,
	parent parent,
) (*Pool, error) {
	p := &Pool{
		cpuWeight:    cpuWeight,
		routerWeight: routerWeight,
		codecs:       codecs,
		parent:       parent,
		quarantined:  make(map[string]bool),
	}

	for i := 0; i < workerCount; i++ {
		id := workerID(i)
		w, err := engine.NewWorker(ctx, id, codecs)
		if err != nil {
			for _, existing := range p.workers {
				existing.Close()
			}
			return nil, err
		}
		p.workers = append(p.workers, w)
		p.watchQuarantine(w)
	}

	p.parent.Log(logger.Info, "worker pool ready with %d workers", len(p.workers))

	return p, nil
}

func workerID(i int) string {
	const letters = "0123456789abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "worker-" + string(letters[i])
	}
	return "worker-" + string(rune('a'+i))
}

func (p *Pool) watchQuarantine(w mediaengine.Worker) {
	go func() {
		<-w.Closed()
		p.mutex.Lock()
		p.quarantined[w.ID()] = true
		p.mutex.Unlock()
		p.parent.Log(logger.Warn, "worker %s quarantined after fatal error", w.ID())
	}()
}

// Acquire selects the least-loaded eligible worker and creates a fresh
// router on it. Returns EngineUnavailable if every worker is
// quarantined.
func (p *Pool) Acquire(ctx context.Context) (Acquisition, error) {
	p.mutex.Lock()
	candidates := make([]mediaengine.Worker, 0, len(p.workers))
	for _, w := range p.workers {
		if !p.quarantined[w.ID()] {
			candidates = append(candidates, w)
		}
	}
	p.mutex.Unlock()

	if len(candidates) == 0 {
		return Acquisition{}, mediaengine.NewError(mediaengine.ErrEngineUnavailable, "no healthy workers")
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci := p.cost(candidates[i])
		cj := p.cost(candidates[j])
		if ci != cj {
			return ci < cj
		}
		return candidates[i].ID() < candidates[j].ID()
	})

	chosen := candidates[0]

	router, err := chosen.NewRouter(ctx)
	if err != nil {
		return Acquisition{}, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	return Acquisition{Worker: chosen, Router: router}, nil
}

func (p *Pool) cost(w mediaengine.Worker) float64 {
	return p.cpuWeight*w.CPUUsage() + p.routerWeight*float64(w.RouterCount())
}

// WorkerCount returns the number of workers in the pool, quarantined or
// not.
func (p *Pool) WorkerCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.workers)
}

// codecUpdater is implemented by engine-provided workers that can swap
// the codec list offered to routers created from now on (pionengine's
// Worker.UpdateCodecs). It is an optional capability, not part of the
// mediaengine.Worker contract, since not every engine needs to support
// a live codec reload.
type codecUpdater interface {
	UpdateCodecs(codecs []mediaengine.CodecParameters) error
}

// UpdateCodecs pushes a new codec list to every worker that supports
// it, for configuration reload. Routers already open keep negotiating
// with whatever codec list they were created with; only routers
// created after this call pick up the new list.
func (p *Pool) UpdateCodecs(codecs []mediaengine.CodecParameters) error {
	p.mutex.Lock()
	workers := make([]mediaengine.Worker, len(p.workers))
	copy(workers, p.workers)
	p.codecs = codecs
	p.mutex.Unlock()

	for _, w := range workers {
		u, ok := w.(codecUpdater)
		if !ok {
			continue
		}
		if err := u.UpdateCodecs(codecs); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down every worker.
func (p *Pool) Close() {
	p.mutex.Lock()
	workers := p.workers
	p.mutex.Unlock()

	for _, w := range workers {
		w.Close()
	}
}
