// Package notify delivers match and handoff events to the people involved.
//
// The engine renders one Event per distinct participant address and hands the
// batch to a Queue. The asynchronous Dispatcher delivers queued events to a
// Sink on its own goroutine, so a slow or failing transport never blocks or
// fails the operation that produced the events. Delivery failures are logged.
//
// Sinks are pluggable: LogSink writes events to slog, SMTPSink sends mail,
// WebhookSink posts to an ntfy-compatible endpoint, and Multi fans out.
package notify
