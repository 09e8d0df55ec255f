/*
Package httpserver runs the admin HTTP server with graceful shutdown and connection metrics.
*/
package httpserver
