// Package worker implements the versioned offline worker: it populates a
// cache generation from a fixed asset manifest (install), garbage-collects
// every other generation (activate), answers intercepted requests with a
// cache-first or network-first policy (fetch) and reacts to foreground
// messages such as SKIP_WAITING (message).
//
// The worker never drives its own lifecycle state. A platform adapter (see
// internal/lifecycle) invokes the On* handlers and owns every transition.
package worker
