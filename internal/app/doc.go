// Package app wires a parsed pipeline model into a live dataset and renders
// the requested rasters. It owns the application lifecycle, decoupled from
// any specific entrypoint like a CLI.
package app
