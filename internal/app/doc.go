// Package app is the composition root: it wires the configuration, logger,
// and registry stack into a runnable instance.
package app
