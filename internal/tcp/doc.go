// Package tcp is the TCP connection provider, optionally secured with TLS and
// listening on IPv4, IPv6, or both.
//
// Ownership boundary:
// - a Provider owns its listeners and the single accept loop that drains them
// - an accepted Conn belongs to the worker its callback runs on
// - an outbound Conn belongs to the caller of Connect
// - neither provider nor loop keeps a reference to handed-out connections
package tcp
