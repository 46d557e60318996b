// Package core owns the process-wide execution context.
//
// Ownership boundary:
// - host/accelerated mode switch and its reinitialization rules
// - root device and active device set
// - the lane pool, per-device workspace arenas, and the properties snapshot
// - root seed plumbing and the worker epoch counter
//
// The context is a documented process-wide singleton reached through Get,
// but collaborators take a *Context so tests can run several independent
// contexts in one process.
package core
