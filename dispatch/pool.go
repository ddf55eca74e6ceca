package dispatch

import (
	"sync"

	"github.com/BaSui01/agentrouter/types"
)

// Pool is a named, ordered, non-empty group of workers rotated round-robin.
// 游标只在 SelectNext / AddWorker / RemoveWorker 内、持锁修改。
type Pool struct {
	name string
	reg  *Registry

	mu         sync.Mutex
	workers    []Worker
	cursor     int
	selections map[string]uint64
}

// PoolSnapshot is a point-in-time copy of a pool's state.
type PoolSnapshot struct {
	Name       string            `json:"name"`
	Workers    []string          `json:"workers"`
	Cursor     int               `json:"cursor"`
	Selections map[string]uint64 `json:"selections"`
}

func newPool(name string, workers []Worker) (*Pool, error) {
	if len(workers) == 0 {
		return nil, types.Errorf(types.ErrEmptyPool, "pool %q has no workers", name)
	}
	seen := make(map[string]struct{}, len(workers))
	for _, w := range workers {
		if w == nil {
			return nil, types.Errorf(types.ErrInvalidInput, "pool %q: nil worker", name)
		}
		if _, dup := seen[w.Name()]; dup {
			return nil, types.Errorf(types.ErrDuplicateWorker, "pool %q: worker %q registered twice", name, w.Name())
		}
		seen[w.Name()] = struct{}{}
	}
	return &Pool{
		name:       name,
		workers:    append([]Worker(nil), workers...),
		selections: make(map[string]uint64, len(workers)),
	}, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Len returns the current number of workers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Cursor returns the index of the worker the next SelectNext will return.
func (p *Pool) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// SelectNext returns the worker at the current cursor and advances the
// cursor by one modulo the pool size. The Nth call on an unresized pool
// returns workers[N mod len]. Read and advance happen under one lock, and
// the lock is released before the caller invokes the worker.
func (p *Pool) SelectNext() (Worker, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.workers[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.workers)
	p.selections[w.Name()]++
	return w, p.cursor
}

// AddWorker appends w to the rotation. The cursor keeps pointing at the
// same next worker.
func (p *Pool) AddWorker(w Worker) error {
	if w == nil {
		return types.Errorf(types.ErrInvalidInput, "pool %q: nil worker", p.name)
	}
	if p.reg != nil {
		if err := p.reg.claim(w, p.name); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.workers {
		if existing.Name() == w.Name() {
			if p.reg != nil {
				p.reg.release(w)
			}
			return types.Errorf(types.ErrDuplicateWorker, "pool %q already has worker %q", p.name, w.Name())
		}
	}
	p.workers = append(p.workers, w)
	p.cursor %= len(p.workers)
	return nil
}

// RemoveWorker drops the named worker. Removing the last worker fails with
// EMPTY_POOL. If the removed worker sat before the cursor, the cursor
// shifts back one so the rotation continues with the same next worker;
// it is then re-normalized modulo the new size.
func (p *Pool) RemoveWorker(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, w := range p.workers {
		if w.Name() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return types.Errorf(types.ErrUnknownWorker, "pool %q has no worker %q", p.name, name)
	}
	if len(p.workers) == 1 {
		return types.Errorf(types.ErrEmptyPool, "cannot remove %q: pool %q would be empty", name, p.name)
	}

	removed := p.workers[idx]
	p.workers = append(p.workers[:idx:idx], p.workers[idx+1:]...)
	if idx < p.cursor {
		p.cursor--
	}
	p.cursor %= len(p.workers)
	delete(p.selections, name)

	if p.reg != nil {
		p.reg.release(removed)
	}
	return nil
}

// Workers returns the worker names in rotation order.
func (p *Pool) Workers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.workers))
	for i, w := range p.workers {
		names[i] = w.Name()
	}
	return names
}

// Snapshot returns a copy of the pool state.
func (p *Pool) Snapshot() PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolSnapshot{
		Name:       p.name,
		Workers:    make([]string, len(p.workers)),
		Cursor:     p.cursor,
		Selections: make(map[string]uint64, len(p.selections)),
	}
	for i, w := range p.workers {
		s.Workers[i] = w.Name()
	}
	for k, v := range p.selections {
		s.Selections[k] = v
	}
	return s
}
