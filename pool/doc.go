// Package pool recycles expensive processing objects and sample buffers.
//
// Objects is a free list keyed by configuration. Instances are checked out with
// Alloc, which reinitializes a recycled instance for the requested key or
// constructs a new one, and returned with Free:
//
//	resamplers := pool.NewObjects[*audio.Resampler]("resampler")
//	key := pool.Key(channels, inRate, outRate, quality)
//	r, err := resamplers.Alloc(key, construct, reinit)
//	defer resamplers.Free(key, r)
//
// Each key counts its constructions. Past LeakThreshold constructions a
// warning is logged; this is a diagnostic only and never blocks allocation.
//
// Free only accepts instances currently checked out under the same key, so a
// mismatched key is reported as ErrNotCheckedOut instead of silently poisoning
// another key's free list.
//
// Buffers recycles float32 sample buffers by length. A Buffer can be
// transferred to another execution context; the sender's view is detached.
//
// Pools belong to a single execution context and are not meant to be shared
// across worker runtimes.
package pool
