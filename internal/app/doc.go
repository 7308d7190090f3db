// Package app provides the application service layer.
//
// Runs moderation requests through a middleware chain (chat scoping, logging, metrics, panic
// recovery), then the authorization gate and the moderation engine, and publishes events for
// applied changes. Depends on domain interfaces, not concrete adapters.
package app
