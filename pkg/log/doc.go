/*
Package log provides structured logging for Hutch using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component-specific logging:

	logger := log.WithComponent("builder")
	logger.Info().
		Str("fingerprint", fp.String()).
		Bool("cache_hit", true).
		Msg("Layer reused")

Instance-scoped logging:

	logger := log.WithInstanceID(instance.ID)
	logger.Error().Err(err).Msg("Failed to start instance")

Simple helpers:

	log.Info("Store opened")
	log.Errorf("Build failed", err)

# Log Format

JSON output (production):

	{"level":"info","component":"builder","fingerprint":"sha256:ab12...","time":"2026-02-11T10:30:00Z","message":"Layer reused"}

Console output (development):

	2026-02-11T10:30:00Z INF Layer reused component=builder fingerprint=sha256:ab12...

# Integration Points

Every long-lived component takes its logger from WithComponent at
construction time: layer store, builder, mount resolver, network
registry, DNS server, volume manager, and orchestrator. Per-entity
fields (service, instance_id, image) are attached per operation.

# See Also

  - zerolog documentation: https://github.com/rs/zerolog
*/
package log
