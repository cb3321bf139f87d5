// Package sockopt holds the socket-level plumbing shared by the stream
// transports: descriptors are made non-inheritable as soon as they exist,
// keep-alive is switched on, and a freshly connected socket is probed before
// it is handed out. It also classifies the errno values the transports retry
// on or turn into remediation hints.
package sockopt
