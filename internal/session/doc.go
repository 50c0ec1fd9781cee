// Package session binds chat channels to agent conversations.
//
// # Overview
//
// Each chat channel has at most one live Session. A Session runs in one
// of two modes:
//
//   - Synchronous: every message spawns a fresh one-shot process
//     (claude -p ... --output-format json) and waits for it to finish.
//   - Streaming: a single long-lived process resumed with
//     claude --resume <id> --output-format stream-json emits output
//     incrementally until it exits.
//
// # Session Lifecycle
//
// 1. Start: StartSession runs one exchange with the greeting prompt. Only
// when it succeeds is a Synchronous session stored, with a locally
// generated id of the form <channelID>-<uuidv7>.
//
// 2. Resume: ResumeSession tears down whatever the channel had, opens a
// stream for the caller-supplied id and stores a Streaming session.
//
// 3. End: EndSession removes the entry. Streaming sessions also stop their
// process. A stream that exits on its own removes its own entry, but only
// if the entry still refers to it, so a stale process never evicts its
// successor.
//
// # Events
//
// Output reaches the outside world as Events delivered to listeners
// registered with OnEvent: EventMessage for each normalized message and
// EventSessionEnded when a stream's process exits.
//
// # Concurrency
//
// The Registry is the only shared mutable structure. Operations that run
// an exchange or replace a session are serialized per channel; EndSession
// never waits behind an in-flight exchange.
package session
