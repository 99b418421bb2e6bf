// Package ratelimit implements the per-identity, per-minute counter that
// guards the subscribe endpoint.
//
// The increment and the threshold check are one atomic step in every
// backend: Redis runs INCR+EXPIRE in a Lua script, Postgres uses
// INSERT ... ON CONFLICT DO UPDATE ... RETURNING, and the memory counter
// holds a mutex. Callers never read-then-write.
package ratelimit
