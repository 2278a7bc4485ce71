package dns

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/network"
	"github.com/hutchd/hutch/pkg/types"
)

// answerTTL keeps answers short-lived so recreated instances are picked up
// on the next query
const answerTTL = 10

// Resolver answers service-name queries from the network registry
type Resolver struct {
	registry *network.Registry
	domain   string // search domain (e.g. "hutch")
	logger   zerolog.Logger
}

// NewResolver creates a resolver over the registry
func NewResolver(registry *network.Registry, domain string) *Resolver {
	return &Resolver{
		registry: registry,
		domain:   domain,
		logger:   log.WithComponent("dns.resolver"),
	}
}

// Resolve resolves a query name to DNS resource records. Lookups hit the
// live registry on every call; nothing is cached here.
func (r *Resolver) Resolve(queryName string) ([]dns.RR, error) {
	name := strings.TrimSuffix(queryName, ".")

	r.logger.Debug().Str("query", name).Msg("Resolving DNS query")

	// Try the name as a service first.
	if records, err := r.resolveService(queryName, name); err == nil {
		return records, nil
	}

	// Then as an instance-specific name (e.g. db-1, db-2).
	if record, err := r.resolveInstance(queryName, name); err == nil {
		return []dns.RR{record}, nil
	}

	return nil, fmt.Errorf("query %q: %w", name, types.ErrNotFound)
}

// resolveService resolves a service name to A records for every joined
// instance. Resolvable networks are searched in name order; the first
// network that knows the name answers.
//
// Supports:
//   - db
//   - db.hutch
func (r *Resolver) resolveService(queryName, name string) ([]dns.RR, error) {
	serviceName := r.stripDomain(name)

	for _, nw := range r.registry.ListResolvable() {
		addrs, err := r.registry.ResolveAll(nw.ID, serviceName)
		if err != nil {
			continue
		}

		r.logger.Debug().
			Str("service", serviceName).
			Str("network", nw.Name).
			Int("instances", len(addrs)).
			Msg("Resolved service")

		fqdn := makeFQDN(queryName)
		records := make([]dns.RR, 0, len(addrs))
		for _, addr := range addrs {
			records = append(records, aRecord(fqdn, addr))
		}
		return records, nil
	}

	return nil, fmt.Errorf("service %q: %w", serviceName, types.ErrNotFound)
}

// resolveInstance resolves an instance-specific name to a single A record.
// Instances are numbered by join order, oldest first, so db-1 is the
// longest-lived instance of db.
//
// Supports:
//   - db-1
//   - db-1.hutch
func (r *Resolver) resolveInstance(queryName, name string) (*dns.A, error) {
	serviceName, instanceNum, err := parseInstanceName(r.stripDomain(name))
	if err != nil {
		return nil, err
	}

	for _, nw := range r.registry.ListResolvable() {
		addrs, err := r.registry.ResolveAll(nw.ID, serviceName)
		if err != nil {
			continue
		}
		if instanceNum > len(addrs) {
			return nil, fmt.Errorf("instance %d not found (service %q has %d instances)",
				instanceNum, serviceName, len(addrs))
		}

		// ResolveAll orders newest first; instance numbers count from
		// the oldest join.
		addr := addrs[len(addrs)-instanceNum]

		r.logger.Debug().
			Str("service", serviceName).
			Int("instance", instanceNum).
			Str("address", addr.String()).
			Msg("Resolved instance")

		return aRecord(makeFQDN(queryName), addr), nil
	}

	return nil, fmt.Errorf("service %q: %w", serviceName, types.ErrNotFound)
}

// stripDomain removes the search domain suffix from a name
// db.hutch -> db
// db -> db
func (r *Resolver) stripDomain(name string) string {
	return strings.TrimSuffix(name, "."+r.domain)
}

// makeFQDN ensures a name ends with a dot (fully qualified)
func makeFQDN(name string) string {
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}

// aRecord builds an A record with the short service TTL
func aRecord(fqdn string, addr net.IP) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{
			Name:   fqdn,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    answerTTL,
		},
		A: addr,
	}
}
