// Package trace is the optional process-wide event buffer.
//
// The buffer is an explicit singleton with an Init/Shutdown pair called
// from the driver; nothing is registered at module load. When the buffer
// is not initialised, Emit is a cheap no-op, so runtime code traces
// unconditionally.
package trace
