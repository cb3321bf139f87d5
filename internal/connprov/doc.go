// Package connprov defines the connection provider contract shared by every
// transport.
//
// Ownership boundary:
// - Provider and Connection interfaces
// - lifecycle modes and states
// - construction options and endpoint syntax
// - coded errors and retry tuning
//
// Transports live in internal/tcp and internal/localipc. Both frame bytes
// through internal/wire.
package connprov
