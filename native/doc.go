// Package native provides the linear-memory ABI used by the DSP kernels.
//
// Processing units exchange sample data with their kernels through integer
// pointers into a Memory arena and explicit byte lengths, the same contract a
// WebAssembly module exposes to its host:
//
//	mem := native.NewMemory()
//	ptr, err := mem.Malloc(4096)
//	samples, err := mem.Float32s(ptr, 4096)
//	defer mem.Free(ptr)
//
// Kernels report failure with a non-zero integer code and leave a message in
// the Module's error slot. Callers must convert every code with Module.Check,
// which yields an *Error carrying the kernel's message:
//
//	if err := module.Check(code); err != nil {
//	    return err
//	}
//
// Stateful kernels (loudness meters, fingerprint accumulators) live in the
// Module's object table and are addressed by Ptr. Host-side wrappers own them
// through a Handle, which releases the object at most once and zeroes the
// pointer afterwards, so a double free surfaces as ErrHandleReleased instead
// of corrupting the arena.
//
// Views returned by Float32s alias the arena and are invalidated by any
// subsequent Malloc or Realloc that grows it.
package native
