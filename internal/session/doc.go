// Package session hosts the single-threaded core of the chat client.
//
// All state lives in one Core applied to by one goroutine; producers
// (keyboard, ticker, finished network tasks) only submit events. The Runner
// executes relay I/O off-thread under a bounded worker budget and reports
// typed results back over the bus, so a slow relay can delay fetches but
// never stall input handling.
package session
