/*
Package dns serves service discovery for Hutch networks: instances reach each
other by declared service name instead of hardcoded addresses.

The server answers A queries for names joined to resolvable networks and
forwards everything else to upstream DNS, so instances use one resolver for
both service discovery and the outside world.

# Architecture

	┌────────────────── DNS RESOLUTION ──────────────────┐
	│                                                    │
	│  query "db.hutch" ──► Server (127.0.0.11:53)       │
	│                          │                         │
	│             A query for a known service?           │
	│              │                       │             │
	│             yes                      no            │
	│              │                       │             │
	│  ┌───────────▼──────────┐  ┌─────────▼──────────┐  │
	│  │ Resolver             │  │ forward upstream   │  │
	│  │  network.Registry    │  │  8.8.8.8:53, ...   │  │
	│  │  ResolveAll(net,"db")│  │  all fail →        │  │
	│  │  A records, TTL 10   │  │  SERVFAIL          │  │
	│  └──────────────────────┘  └────────────────────┘  │
	│                                                    │
	└────────────────────────────────────────────────────┘

# Name Forms

	db          bare service name
	db.hutch    service name under the search domain
	db-1        oldest joined instance of db
	db-2.hutch  second-oldest, with domain

Answers carry a 10 second TTL. Every query reads the live registry, so an
instance recreated under the same service name is picked up by the very next
lookup; the documented failure mode of long-cached addresses cannot happen.

Only resolvable networks take part. The default network never does, so
services there see each other only by address.

# Usage

	server := dns.NewServer(registry, &dns.Config{
		ListenAddr: "127.0.0.11:53",
		Domain:     "hutch",
		Upstream:   []string{"8.8.8.8:53"},
	})
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

# Integration Points

  - pkg/network: the Registry is the single source of name-to-address truth
  - pkg/metrics: hutch_dns_queries_total{outcome} counts resolved, forwarded
    and servfail answers
  - cmd/hutch: the serve command runs this next to the status server

# See Also

  - pkg/network for join/leave semantics behind resolution
*/
package dns
