/*
Package network provides virtual networks for Hutch instances: isolated
address spaces carved from a shared pool, live service-name resolution, and
a host port reservation table.

The Registry is the authority for who is on which network at which address.
Networks persist across restarts; address assignments do not, because they
describe running instances.

# Architecture

	┌─────────────────── VIRTUAL NETWORKS ───────────────────┐
	│                                                         │
	│  Pool 10.42.0.0/16                                      │
	│  ┌───────────────────────────────────────────┐          │
	│  │  Registry                                 │          │
	│  │  - carves one /24 per network             │          │
	│  │  - gateway = first host (x.y.z.1)         │          │
	│  │  - instances get .2, .3, ... wrap cursor  │          │
	│  └───────────────┬───────────────────────────┘          │
	│                  │                                      │
	│   ┌──────────────┴──────────────┐                       │
	│   │                             │                       │
	│  ┌▼───────────────┐   ┌─────────▼──────┐                │
	│  │ "appnet"       │   │ "default"      │                │
	│  │ 10.42.0.0/24   │   │ 10.42.1.0/24   │                │
	│  │ resolvable     │   │ not resolvable │                │
	│  │  web → .2      │   │                │                │
	│  │  db  → .3      │   │                │                │
	│  └────────────────┘   └────────────────┘                │
	│                                                         │
	└─────────────────────────────────────────────────────────┘

# Address Assignment

Join hands out the first free address scanning ascending from just past the
previous assignment, wrapping to the start of the range; the network address
and the gateway are never assigned. Leave returns the address to the pool,
but a freed address is not retaken until the scan comes back around, so a
recreated instance observably changes address. A full subnet fails
immediately with ErrAddressExhausted; nothing waits for an address to free
up.

# Name Resolution

Resolve and ResolveAll answer from the live membership table. When a service
name was joined more than once, the newest join wins, so stopping an instance
and starting a replacement under the same name moves resolution without any
consumer-side change. Only networks created with Resolvable are queried; the
default network deliberately is not, matching the split between an ad hoc
shared network and a per-stack private one.

# Usage

	registry, err := network.NewRegistry(store, network.DefaultPool)
	if err != nil {
		return err
	}

	nw, err := registry.Ensure("appnet", network.CreateOptions{Resolvable: true})
	if err != nil {
		return err
	}

	addr, err := registry.Join(nw.ID, instance.ID, "db")
	if err != nil {
		return err
	}

	// Elsewhere, live lookup:
	addr, err = registry.Resolve(nw.ID, "db")

# Host Ports

HostPorts is the deterministic bookkeeping side of publishing: a table of
host port reservations keyed by port and protocol. Publish is all-or-nothing
per instance and rejects ports another instance holds; Unpublish releases
everything the instance reserved.

# Integration Points

  - pkg/orchestrator: ensures networks on up, joins and leaves instances,
    publishes host ports
  - pkg/dns: answers A queries through Resolve/ResolveAll on resolvable
    networks
  - pkg/storage: network records live in the networks bucket

# See Also

  - pkg/dns for the DNS server reading this registry
  - pkg/orchestrator for lifecycle wiring
*/
package network
