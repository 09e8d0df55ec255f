/*
Package system manages the startup, running, metrics and shutdown of the monitor.

The monitor runs a few things in the background (the check scheduler, the admin API and the
metrics loop) and needs to stop them all cleanly when told to. Services are run in an errgroup,
so the first one to return an error stops the rest. Cleanups run in the order they were added
once Run has returned.
*/
package system
