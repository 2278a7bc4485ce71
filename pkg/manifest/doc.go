/*
Package manifest loads stack files and merges environment overrides.

A stack file declares the services of one project in YAML. Each service
is either pinned to an image or built from a typed step plan:

	name: shop
	services:
	  web:
	    build:
	      context: ./web
	      args: {ENV: production}
	      steps:
	        - kind: from-base
	          from: node:20
	        - kind: set-workdir
	          workdir: /app
	        - kind: copy
	          src: package.json
	          dst: /app/
	        - kind: run
	          command: npm ci
	    volumes:
	      - ./web:/app:ro
	      - /app/node_modules
	    ports:
	      - "8080:3000"
	  db:
	    image: postgres:16
	    volumes:
	      - dbdata:/var/lib/postgresql/data

# Overrides

Merge overlays one file onto another with a fixed per-field policy:

	name, image, build    replace (image or build swaps the method)
	command               replace wholesale
	environment           merge by key
	volumes               replace by target, append new targets
	ports                 replace by host port, append new host ports

Overrides can add and replace but never remove; removing a base entry
means editing the base file. Relative paths always resolve against the
first file's directory, no matter which file contributed the entry.

# Mount Grammar

	/path           anonymous volume at /path
	name:/path      named volume
	./src:/path     bind mount (source starting with "/" or ".")
	src:/path:ro    read-only

# Lifecycle

Load and Parse accept incomplete files, since an override alone need
not be runnable. Validate checks the merged result, and Descriptors
converts it into the typed service descriptors the orchestrator
consumes.

# See Also

  - pkg/types for ServiceDescriptor, BuildSpec, and MountSpec
  - pkg/orchestrator for what happens to the descriptors
*/
package manifest
