/*
Package healthcheck serves the admin API: liveness and readiness built from the health checks
registered on a system, plus the Go runtime's pprof handlers.
*/
package healthcheck
