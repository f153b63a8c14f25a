// Package app contains the core application logic. It wires configuration,
// logging, the node palette and the array source openers into an App, and
// runs graph files with it, decoupled from any specific entrypoint like a
// CLI or server.
package app
