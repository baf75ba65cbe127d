// Package worker implements message passing between execution contexts.
//
// A Runtime stands for one context (the main window or an audio worker). It
// owns a single event loop goroutine, so action handlers and receivers
// registered with it never run concurrently. Runtimes talk through Ports: Pipe
// connects two runtimes in the same process, ConnPort carries gob-encoded
// envelopes over a Noise-secured net.Conn.
//
// The worker side creates a Backend per logical service and announces it with
// Start. The main side obtains a Frontend by name; once the matching ready
// announcement arrives, the Frontend is bound to the Backend's channel and can
// post messages or issue calls:
//
//	backend, _ := workerRT.CreateBackend("audio", handler)
//	_ = backend.Start()
//
//	fe := mainRT.Frontend("audio", receiver)
//	if err := fe.Ready(ctx); err != nil { ... }
//	reply, err := fe.Call(ctx, worker.ActionGetLoudness, []any{true})
//
// Workers reach back into the main context with CallMainWindow, answered by
// functions registered on the main runtime with RegisterMainWindowFunc.
package worker
