// Package daemon hosts the long-running process: it enforces
// single-instance execution with a lock file, reclaims work interrupted
// by an unclean shutdown, drives the worker pool and retention sweeps,
// and serves the HTTP status API.
package daemon
