package network

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hutchd/hutch/pkg/types"
)

// portKey identifies one host port reservation
type portKey struct {
	protocol string
	port     uint16
}

func (k portKey) String() string {
	return fmt.Sprintf("%d/%s", k.port, k.protocol)
}

// HostPorts is the reservation table for ports published on the host
// interface. Publishing is all-or-nothing per instance: a single conflicting
// binding reserves nothing.
type HostPorts struct {
	mu         sync.Mutex
	byPort     map[portKey]string // reservation -> instance ID
	byInstance map[string][]types.PortMapping
}

// NewHostPorts creates an empty reservation table
func NewHostPorts() *HostPorts {
	return &HostPorts{
		byPort:     make(map[portKey]string),
		byInstance: make(map[string][]types.PortMapping),
	}
}

// normalizeProtocol defaults empty protocols to tcp
func normalizeProtocol(protocol string) string {
	p := strings.ToLower(protocol)
	if p == "" {
		p = "tcp"
	}
	return p
}

// Publish reserves the host ports in bindings for an instance. A port
// already held by another instance fails the whole call; a port held by the
// same instance is kept as is.
func (h *HostPorts) Publish(instanceID string, bindings []types.PortMapping) error {
	if len(bindings) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Validate every binding before committing any.
	keys := make([]portKey, 0, len(bindings))
	for _, b := range bindings {
		if b.HostPort == 0 {
			return fmt.Errorf("host port is required to publish container port %d", b.ContainerPort)
		}
		key := portKey{protocol: normalizeProtocol(b.Protocol), port: b.HostPort}
		if holder, taken := h.byPort[key]; taken && holder != instanceID {
			return fmt.Errorf("host port %s already reserved by instance %s", key, holder)
		}
		for _, seen := range keys {
			if seen == key {
				return fmt.Errorf("host port %s bound twice by the same instance", key)
			}
		}
		keys = append(keys, key)
	}

	for _, key := range keys {
		h.byPort[key] = instanceID
	}
	h.byInstance[instanceID] = append([]types.PortMapping(nil), bindings...)

	return nil
}

// Unpublish releases every port the instance holds. Instances with no
// reservations are a no-op.
func (h *HostPorts) Unpublish(instanceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	bindings, ok := h.byInstance[instanceID]
	if !ok {
		return nil
	}

	for _, b := range bindings {
		key := portKey{protocol: normalizeProtocol(b.Protocol), port: b.HostPort}
		if h.byPort[key] == instanceID {
			delete(h.byPort, key)
		}
	}
	delete(h.byInstance, instanceID)

	return nil
}

// Published returns the bindings currently reserved for an instance
func (h *HostPorts) Published(instanceID string) []types.PortMapping {
	h.mu.Lock()
	defer h.mu.Unlock()

	bindings := h.byInstance[instanceID]
	out := make([]types.PortMapping, len(bindings))
	copy(out, bindings)
	return out
}

// Reserved returns every reservation in the table as "port/protocol"
// strings, sorted, for status output
func (h *HostPorts) Reserved() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.byPort))
	for key := range h.byPort {
		out = append(out, key.String())
	}
	sort.Strings(out)
	return out
}
