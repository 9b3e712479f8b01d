// Package internal contains the implementation packages of autotrack.
//
// # Package Organization
//
// The tracking engine, bottom-up:
//
//   - dom: in-process document with mutation observers and event dispatch
//   - location, codec: location contexts and the tagging attribute protocol
//   - tagging: helpers producing tagging attributes for templ components
//   - walker, locationstack: ancestor walks and location stack construction
//   - children: children queries that tag matching descendants
//   - index: uniqueness index of mounted location stacks
//   - events, delivery: analytics events, the delivery queue and its sinks
//   - interceptor: press tracking, including presses that block navigation
//   - autotrack: the mutation lifecycle controller tying it together
//
// Around the engine:
//
//   - errors, logging: the error channel and structured logging
//   - config, validation, version: settings and input checks for the CLI
//   - scenario: scripted sessions replayed against a live controller
//   - watcher, websocket: file watching and the event stream of the watch command
//
// The engine is single-threaded like the document it instruments: every
// callback runs on the goroutine that mutates the document. Only the
// delivery queue, its sinks and the websocket hub are shared across
// goroutines.
package internal
