// Package app contains the application wiring: configuration, logger
// construction, and the load -> compile -> emit lifecycle, decoupled from
// any specific entrypoint like a CLI.
package app
