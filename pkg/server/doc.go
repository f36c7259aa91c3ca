// Package server runs client sessions: it reads inbound packets from a
// connection, dispatches them through the handler chain one at a time per
// session, and writes compiled frames back.
//
// # Session Loops
//
// Every session runs two goroutines:
//
//   - ReadLoop: reads raw transport messages, splits them into packets and
//     queues them on the session backlog.
//   - EventLoop: the session's single processing context. It dispatches
//     queued packets in arrival order and runs functions funnelled through
//     Session.Dispatch.
//
// Everything that touches the attached player, including periodic flushes
// started by the Manager, runs on the EventLoop. Handlers therefore never
// need locks to read or write player attributes.
//
// # File Structure
//
//   - session.go: Session and its loops
//   - conn.go: Conn interface and the WebSocket adapter
//   - manager.go: Manager, the session registry and flush ticker
//   - config.go: SessionConfig
//   - errors.go: Error types
package server
