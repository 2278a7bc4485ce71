/*
Package builder turns build plans into images made of cached layers.

A plan is an ordered list of steps. Each step's fingerprint is a hash
chain over the parent fingerprint and the step's rendered operands, so
a step is re-executed only when something that feeds it actually
changed: the base, an earlier step, an argument binding, or the bytes
of a copied source.

# Build Flow

	  plan + args                 layer store
	      │                            │
	      ▼                            │
	 renderPlan ──► step chain         │
	      │                            │
	      ▼        probe ──────────────┤ hit: reuse layer
	 for each step ──► Acquire(fp) ────┤
	      │            re-check ───────┤ still missing:
	      │                            │   execute in staging,
	      │                            │   diff, Put blob
	      ▼                            │
	 CreateImage ◄─────────────────────┘

# Fingerprints

Step keys chain from the base: key(i) = H(key(i-1), kind, operands).
Copy steps fold a digest of the source into their key, covering file
content, permission bits, and symlink targets but not timestamps.
Conditional steps are spliced out before rendering, so the chain only
ever contains the branch that was taken.

# Staging

Staging is lazy. A fully cached build never touches the filesystem:
layers are probed by fingerprint and reused as-is. The first cache
miss materializes the parent chain through the Fetcher and copies it
into a private staging directory; later hits in the same build apply
their blobs to that directory to keep it current.

The Fetcher deduplicates materialization with singleflight: when many
builds want the same chain realized, one does the work and the rest
wait for its result or their own context deadline, whichever comes
first.

# Concurrency

Two builders can race to produce the same fingerprint. The store's
per-fingerprint sections serialize them: probe, Acquire, re-check,
and only execute on a genuine miss. Distinct fingerprints never
contend, so unrelated builds proceed in parallel.

# Failure

A failed step surfaces as a BuildError carrying the step index and
operation. The image record is only created after every step
succeeds, but layers stored before the failure stay in the store and
seed the next attempt.

# See Also

  - pkg/layer for layer storage, blobs, and per-fingerprint locking
  - pkg/types for Step, Plan, Image, and Fingerprint
*/
package builder
