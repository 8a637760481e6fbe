// Package ws carries named terminal events over a WebSocket connection.
//
// Every frame is a JSON text message of the form
//
//	{"event": "<name>", "data": <payload>}
//
// The server emits "output" (a string) and "pong"; clients send "input"
// (a string), "resize" ({"col": N, "row": N}) and "ping". A read error or a
// close frame from the client is reported as a disconnect through Done.
//
// Outgoing frames are written by a single goroutine in the order they were
// emitted. Emit blocks while the send queue is full, which is the only
// backpressure applied to a terminal's output.
package ws
