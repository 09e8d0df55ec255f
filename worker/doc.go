/*
Package worker runs work loops with observability and panic recovery.

Run calls its work func in a loop, backing off when there was no work to do. RunEvery calls
its work func on a fixed schedule and never lets two runs overlap.
*/
package worker
