// Package domain defines the core moderation types and interfaces.
//
// Concept-oriented files (user.go, action.go, store.go, errors.go, pubsub.go) hold the shared
// types and the contracts implemented by adapters. No implementation code beyond small helpers.
// Interfaces live on the consumer side to prevent circular imports.
package domain
