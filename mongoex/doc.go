/*
Package mongoex connects directly to individual replica set members and runs the
administrative commands the health checks need.

Every command runs in its own span and records a timing metric. Connection pool events
from every connection the Dialer makes are counted and reported as gauges.
*/
package mongoex
