// Package localipc is the local IPC connection provider: a Unix-domain stream
// socket at <STAF_TEMP_DIR>/STAFIPC_<name>. It has no TLS and both ends are
// always identified as "local".
package localipc
