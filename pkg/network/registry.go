package network

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/storage"
	"github.com/hutchd/hutch/pkg/types"
)

const (
	// DefaultPool is the address pool networks are carved from
	DefaultPool = "10.42.0.0/16"

	// DefaultNetworkName is the pre-existing network used when a service
	// declares no networks. It never resolves service names.
	DefaultNetworkName = "default"

	// subnetBits is the prefix length of each carved network
	subnetBits = 24

	// gatewayOrdinal is the host ordinal reserved for the gateway
	gatewayOrdinal = 1

	// firstHostOrdinal is the first ordinal handed to instances
	firstHostOrdinal = 2
)

// ErrAddressExhausted reports that a network (or the registry's subnet pool)
// has no free address left. Join fails fast; it never blocks waiting for an
// address to free up.
var ErrAddressExhausted = errors.New("address space exhausted")

// CreateOptions control network creation
type CreateOptions struct {
	// Resolvable enables service-name DNS on the network. The default
	// network is created with this off.
	Resolvable bool
}

// member records one instance's seat on a network
type member struct {
	instanceID  string
	serviceName string
	addr        net.IP
	ordinal     int
	seq         uint64
	joinedAt    time.Time
}

// netState is the in-memory bookkeeping for one network
type netState struct {
	network *types.Network
	subnet  *net.IPNet
	index   int // subnet ordinal within the pool
	members map[string]*member
	used    map[int]string // host ordinal -> instance ID
	next    int            // ordinal the next Join scan starts from
}

// Registry tracks virtual networks and the addresses joined instances hold.
// Network records persist in the store; address assignments are process-scoped
// and rebuilt by the orchestrator when instances come back up.
//
// Reads (Resolve, ResolveAll, Get, List) run concurrently; Join, Leave,
// Create and Remove serialize against each other and against reads.
type Registry struct {
	store  storage.Store
	pool   *net.IPNet
	logger zerolog.Logger

	mu          sync.RWMutex
	networks    map[string]*netState
	usedSubnets map[int]string // subnet index -> network ID
	joinSeq     uint64
}

// NewRegistry creates a registry over the given pool (DefaultPool when empty)
// and rehydrates previously created networks from the store.
func NewRegistry(store storage.Store, pool string) (*Registry, error) {
	if pool == "" {
		pool = DefaultPool
	}
	_, poolNet, err := net.ParseCIDR(pool)
	if err != nil {
		return nil, fmt.Errorf("failed to parse network pool %q: %w", pool, err)
	}
	ones, bits := poolNet.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("network pool %q must be IPv4", pool)
	}
	if ones > subnetBits {
		return nil, fmt.Errorf("network pool %q is too small to carve /%d subnets", pool, subnetBits)
	}

	r := &Registry{
		store:       store,
		pool:        poolNet,
		logger:      log.WithComponent("network"),
		networks:    make(map[string]*netState),
		usedSubnets: make(map[int]string),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load rebuilds subnet bookkeeping from persisted network records. Membership
// is not restored; instances re-join on the next up.
func (r *Registry) load() error {
	stored, err := r.store.ListNetworks()
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}

	for _, nw := range stored {
		_, subnet, err := net.ParseCIDR(nw.Subnet)
		if err != nil {
			return fmt.Errorf("network %s has invalid subnet %q: %w", nw.Name, nw.Subnet, err)
		}
		idx, err := r.subnetIndex(subnet)
		if err != nil {
			return fmt.Errorf("network %s: %w", nw.Name, err)
		}

		r.networks[nw.ID] = &netState{
			network: nw,
			subnet:  subnet,
			index:   idx,
			members: make(map[string]*member),
			used:    make(map[int]string),
			next:    firstHostOrdinal,
		}
		r.usedSubnets[idx] = nw.ID
	}

	return nil
}

// subnetCount is how many /24 networks the pool can hold
func (r *Registry) subnetCount() int {
	ones, _ := r.pool.Mask.Size()
	return 1 << (subnetBits - ones)
}

// subnetIndex locates a subnet's ordinal within the pool
func (r *Registry) subnetIndex(subnet *net.IPNet) (int, error) {
	ones, _ := r.pool.Mask.Size()
	for i := 0; i < r.subnetCount(); i++ {
		candidate, err := cidr.Subnet(r.pool, subnetBits-ones, i)
		if err != nil {
			return 0, fmt.Errorf("failed to enumerate pool: %w", err)
		}
		if candidate.String() == subnet.String() {
			return i, nil
		}
	}
	return 0, fmt.Errorf("subnet %s is outside pool %s", subnet, r.pool)
}

// findLocked returns the state for the named network, or nil
func (r *Registry) findLocked(name string) *netState {
	for _, st := range r.networks {
		if st.network.Name == name {
			return st
		}
	}
	return nil
}

// Create carves the next free subnet from the pool and persists the network.
// The gateway takes the subnet's first host address.
func (r *Registry) Create(name string, opts CreateOptions) (*types.Network, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("network name is required")
	}
	if st := r.findLocked(name); st != nil {
		return nil, fmt.Errorf("network %q already exists", name)
	}
	return r.createLocked(name, opts)
}

// Ensure returns the named network, creating it on first use
func (r *Registry) Ensure(name string, opts CreateOptions) (*types.Network, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("network name is required")
	}
	if st := r.findLocked(name); st != nil {
		return st.network, nil
	}
	return r.createLocked(name, opts)
}

// EnsureDefault returns the default network, creating it on first use. It is
// never resolvable; per-stack networks opt in through CreateOptions.
func (r *Registry) EnsureDefault() (*types.Network, error) {
	return r.Ensure(DefaultNetworkName, CreateOptions{Resolvable: false})
}

func (r *Registry) createLocked(name string, opts CreateOptions) (*types.Network, error) {
	idx := -1
	for i := 0; i < r.subnetCount(); i++ {
		if _, taken := r.usedSubnets[i]; !taken {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("no free subnet in pool %s: %w", r.pool, ErrAddressExhausted)
	}

	ones, _ := r.pool.Mask.Size()
	subnet, err := cidr.Subnet(r.pool, subnetBits-ones, idx)
	if err != nil {
		return nil, fmt.Errorf("failed to carve subnet: %w", err)
	}
	gateway, err := cidr.Host(subnet, gatewayOrdinal)
	if err != nil {
		return nil, fmt.Errorf("failed to derive gateway: %w", err)
	}

	nw := &types.Network{
		ID:         uuid.New().String(),
		Name:       name,
		Subnet:     subnet.String(),
		Gateway:    gateway,
		Resolvable: opts.Resolvable,
		CreatedAt:  time.Now(),
	}
	if err := r.store.CreateNetwork(nw); err != nil {
		return nil, fmt.Errorf("failed to store network: %w", err)
	}

	r.networks[nw.ID] = &netState{
		network: nw,
		subnet:  subnet,
		index:   idx,
		members: make(map[string]*member),
		used:    make(map[int]string),
		next:    firstHostOrdinal,
	}
	r.usedSubnets[idx] = nw.ID

	r.logger.Info().
		Str("network", name).
		Str("subnet", nw.Subnet).
		Str("gateway", gateway.String()).
		Bool("resolvable", nw.Resolvable).
		Msg("Network created")

	return nw, nil
}

// Get returns a network by ID
func (r *Registry) Get(id string) (*types.Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.networks[id]
	if !ok {
		return nil, fmt.Errorf("network %s: %w", id, types.ErrNotFound)
	}
	return st.network, nil
}

// GetByName returns a network by name
func (r *Registry) GetByName(name string) (*types.Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := r.findLocked(name)
	if st == nil {
		return nil, fmt.Errorf("network %q: %w", name, types.ErrNotFound)
	}
	return st.network, nil
}

// List returns all networks sorted by name
func (r *Registry) List() ([]*types.Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	networks := make([]*types.Network, 0, len(r.networks))
	for _, st := range r.networks {
		networks = append(networks, st.network)
	}
	sort.Slice(networks, func(i, j int) bool {
		return networks[i].Name < networks[j].Name
	})
	return networks, nil
}

// ListResolvable returns the networks that serve DNS, sorted by name
func (r *Registry) ListResolvable() []*types.Network {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var networks []*types.Network
	for _, st := range r.networks {
		if st.network.Resolvable {
			networks = append(networks, st.network)
		}
	}
	sort.Slice(networks, func(i, j int) bool {
		return networks[i].Name < networks[j].Name
	})
	return networks
}

// Join assigns the instance the first free address found scanning ascending
// from just past the previous assignment, wrapping to the start of the range.
// Freed addresses are therefore not retaken until the scan comes back around,
// so a recreated instance observably changes address. Joining twice returns
// the address already held. A full network fails immediately with
// ErrAddressExhausted.
func (r *Registry) Join(networkID, instanceID, serviceName string) (net.IP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.networks[networkID]
	if !ok {
		return nil, fmt.Errorf("network %s: %w", networkID, types.ErrNotFound)
	}
	if m, joined := st.members[instanceID]; joined {
		return m.addr, nil
	}

	// Last ordinal is the broadcast address, never assigned.
	last := int(cidr.AddressCount(st.subnet)) - 1
	hosts := last - firstHostOrdinal
	ordinal := -1
	for n := 0; n < hosts; n++ {
		i := firstHostOrdinal + (st.next-firstHostOrdinal+n)%hosts
		if _, taken := st.used[i]; !taken {
			ordinal = i
			break
		}
	}
	if ordinal < 0 {
		return nil, fmt.Errorf("network %q (%s) has no free address: %w",
			st.network.Name, st.network.Subnet, ErrAddressExhausted)
	}
	st.next = firstHostOrdinal + (ordinal-firstHostOrdinal+1)%hosts

	addr, err := cidr.Host(st.subnet, ordinal)
	if err != nil {
		return nil, fmt.Errorf("failed to derive address: %w", err)
	}

	r.joinSeq++
	st.members[instanceID] = &member{
		instanceID:  instanceID,
		serviceName: serviceName,
		addr:        addr,
		ordinal:     ordinal,
		seq:         r.joinSeq,
		joinedAt:    time.Now(),
	}
	st.used[ordinal] = instanceID

	r.logger.Debug().
		Str("network", st.network.Name).
		Str("instance_id", instanceID).
		Str("service", serviceName).
		Str("address", addr.String()).
		Msg("Instance joined network")

	return addr, nil
}

// Leave releases the instance's address back to the free pool. Leaving a
// network the instance never joined is a no-op.
func (r *Registry) Leave(networkID, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.networks[networkID]
	if !ok {
		return fmt.Errorf("network %s: %w", networkID, types.ErrNotFound)
	}
	m, joined := st.members[instanceID]
	if !joined {
		return nil
	}

	delete(st.members, instanceID)
	delete(st.used, m.ordinal)

	r.logger.Debug().
		Str("network", st.network.Name).
		Str("instance_id", instanceID).
		Str("address", m.addr.String()).
		Msg("Instance left network")

	return nil
}

// Resolve returns the address currently bound to a service name. When the
// name was joined more than once the newest live join wins, so recreating an
// instance under the same name transparently moves resolution. Queries are
// answered from the live table, never from a cache.
func (r *Registry) Resolve(networkID, serviceName string) (net.IP, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.networks[networkID]
	if !ok {
		return nil, fmt.Errorf("network %s: %w", networkID, types.ErrNotFound)
	}
	if !st.network.Resolvable {
		return nil, fmt.Errorf("network %q does not resolve service names: %w",
			st.network.Name, types.ErrNotFound)
	}

	var newest *member
	for _, m := range st.members {
		if m.serviceName != serviceName {
			continue
		}
		if newest == nil || m.seq > newest.seq {
			newest = m
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("service %q not found on network %q: %w",
			serviceName, st.network.Name, types.ErrNotFound)
	}
	return newest.addr, nil
}

// ResolveAll returns every address joined under the service name, newest
// join first. DNS answers A queries with the full set.
func (r *Registry) ResolveAll(networkID, serviceName string) ([]net.IP, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.networks[networkID]
	if !ok {
		return nil, fmt.Errorf("network %s: %w", networkID, types.ErrNotFound)
	}
	if !st.network.Resolvable {
		return nil, fmt.Errorf("network %q does not resolve service names: %w",
			st.network.Name, types.ErrNotFound)
	}

	var matched []*member
	for _, m := range st.members {
		if m.serviceName == serviceName {
			matched = append(matched, m)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("service %q not found on network %q: %w",
			serviceName, st.network.Name, types.ErrNotFound)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq > matched[j].seq
	})
	addrs := make([]net.IP, len(matched))
	for i, m := range matched {
		addrs[i] = m.addr
	}
	return addrs, nil
}

// Remove deletes a network. It fails while instances are still joined.
func (r *Registry) Remove(networkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.networks[networkID]
	if !ok {
		return fmt.Errorf("network %s: %w", networkID, types.ErrNotFound)
	}
	if n := len(st.members); n > 0 {
		return fmt.Errorf("network %q still has %d joined instances", st.network.Name, n)
	}

	if err := r.store.DeleteNetwork(networkID); err != nil {
		return fmt.Errorf("failed to delete network: %w", err)
	}

	delete(r.networks, networkID)
	delete(r.usedSubnets, st.index)

	r.logger.Info().Str("network", st.network.Name).Msg("Network removed")
	return nil
}
