package dispatch

import (
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/types"
)

// Route maps one routing key to a pool.
type Route struct {
	Key  RoutingKey `json:"key"`
	Pool string     `json:"pool"`
}

// Registry holds the named pools and the routing table. Pools and routes
// are added at startup; afterwards the only mutable state lives in each
// Pool's cursor.
type Registry struct {
	mu          sync.RWMutex
	pools       map[string]*Pool
	order       []string
	routes      map[string]Route
	defaultPool string
	schema      []Dimension

	// 一个 worker 实例只能属于一个 pool
	ownMu  sync.Mutex
	owners map[uintptr]string

	logger *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSchema declares the dimensions routing keys must conform to. Without
// a schema AddRoute accepts any non-empty key.
func WithSchema(dims ...Dimension) RegistryOption {
	return func(r *Registry) {
		r.schema = append([]Dimension(nil), dims...)
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		pools:  make(map[string]*Pool),
		routes: make(map[string]Route),
		owners: make(map[uintptr]string),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "registry"))
	return r
}

// Schema returns the declared dimensions, if any.
func (r *Registry) Schema() []Dimension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Dimension(nil), r.schema...)
}

// Register adds a named pool with workers in rotation order.
func (r *Registry) Register(name string, workers ...Worker) error {
	if name == "" {
		return types.NewError(types.ErrInvalidInput, "pool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[name]; exists {
		return types.Errorf(types.ErrDuplicatePool, "pool %q already registered", name)
	}
	pool, err := newPool(name, workers)
	if err != nil {
		return err
	}

	claimed := make([]Worker, 0, len(workers))
	for _, w := range workers {
		if err := r.claim(w, name); err != nil {
			for _, c := range claimed {
				r.release(c)
			}
			return err
		}
		claimed = append(claimed, w)
	}

	pool.reg = r
	r.pools[name] = pool
	r.order = append(r.order, name)

	r.logger.Debug("pool registered",
		zap.String("pool", name),
		zap.Strings("workers", pool.Workers()),
	)
	return nil
}

// AddRoute maps key to a registered pool. Remapping an existing key is an
// error so routing-table mistakes surface at construction time.
func (r *Registry) AddRoute(key RoutingKey, poolName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateKey(key, r.schema); err != nil {
		return err
	}
	if _, ok := r.pools[poolName]; !ok {
		return types.Errorf(types.ErrUnknownPool, "route %q targets unknown pool %q", key, poolName)
	}
	k := key.tableKey()
	if existing, dup := r.routes[k]; dup {
		return types.Errorf(types.ErrDuplicateRoute, "route %q already maps to pool %q", key, existing.Pool)
	}
	r.routes[k] = Route{Key: NewRoutingKey(key...), Pool: poolName}

	r.logger.Debug("route added", zap.String("key", key.String()), zap.String("pool", poolName))
	return nil
}

// SetDefaultPool sets the fallback pool for keys without an explicit route.
func (r *Registry) SetDefaultPool(poolName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[poolName]; !ok {
		return types.Errorf(types.ErrUnknownPool, "default pool %q is not registered", poolName)
	}
	r.defaultPool = poolName
	return nil
}

// DefaultPool returns the fallback pool name, if one is set.
func (r *Registry) DefaultPool() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultPool, r.defaultPool != ""
}

// Resolve returns the pool for key: the explicit route if any, else the
// default pool, else NO_ROUTE_AND_NO_DEFAULT. It never touches a cursor.
func (r *Registry) Resolve(key RoutingKey) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if route, ok := r.routes[key.tableKey()]; ok {
		return route.Pool, nil
	}
	if r.defaultPool != "" {
		return r.defaultPool, nil
	}
	return "", types.Errorf(types.ErrNoRouteAndNoDefault, "no route for %q", key)
}

// Pool looks up a pool by name.
func (r *Registry) Pool(name string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[name]
	if !ok {
		return nil, types.Errorf(types.ErrUnknownPool, "pool %q is not registered", name)
	}
	return p, nil
}

// PoolNames returns pool names in registration order.
func (r *Registry) PoolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Pools returns a snapshot of every pool in registration order.
func (r *Registry) Pools() []PoolSnapshot {
	r.mu.RLock()
	pools := make([]*Pool, 0, len(r.order))
	for _, name := range r.order {
		pools = append(pools, r.pools[name])
	}
	r.mu.RUnlock()

	out := make([]PoolSnapshot, len(pools))
	for i, p := range pools {
		out[i] = p.Snapshot()
	}
	return out
}

// Routes returns the explicit routes sorted by canonical key.
func (r *Registry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// ReachableKeys enumerates every key of the registry schema.
func (r *Registry) ReachableKeys() []RoutingKey {
	return ReachableKeys(r.Schema())
}

// claim records that w belongs to pool. Only pointer-shaped workers have a
// stable identity; value workers are not tracked.
func (r *Registry) claim(w Worker, pool string) error {
	id, ok := workerIdentity(w)
	if !ok {
		return nil
	}
	r.ownMu.Lock()
	defer r.ownMu.Unlock()

	if owner, taken := r.owners[id]; taken {
		return types.Errorf(types.ErrWorkerAlreadyOwned,
			"worker %q already belongs to pool %q", w.Name(), owner)
	}
	r.owners[id] = pool
	return nil
}

func (r *Registry) release(w Worker) {
	id, ok := workerIdentity(w)
	if !ok {
		return
	}
	r.ownMu.Lock()
	delete(r.owners, id)
	r.ownMu.Unlock()
}

func workerIdentity(w Worker) (uintptr, bool) {
	v := reflect.ValueOf(w)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return 0, false
	}
	return v.Pointer(), true
}
