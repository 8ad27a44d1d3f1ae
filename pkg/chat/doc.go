// Package chat owns the real-time chat connection of a logged in user and the
// room views built on top of it.
//
// A Manager keeps at most one transport connection per identity, reconnects
// with a fixed backoff when it drops and replays the active subscriptions
// once it is back. Publishing is at-most-once: a message is sent when the
// connection is up, held briefly while it is connecting, and otherwise
// dropped with a warning.
package chat
