// Package scratch manages single-use temporary artifacts on local disk.
// Each artifact lives for the duration of one request: it is written under
// a collision-free unique name, handed to downstream consumers by path,
// and removed when the owning request releases it.
package scratch
