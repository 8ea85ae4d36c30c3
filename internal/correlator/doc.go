// Package correlator matches asynchronous responses to the requests that
// caused them.
//
// A caller registers a completion under a fresh token before issuing a
// request, then resolves the token when the answer (or a failure) arrives.
// Every registered completion runs exactly once: on Resolve, on Expire once
// its deadline has passed, or on Drain at shutdown.
//
// A Correlator is not safe for concurrent use. It is meant to be owned by a
// single goroutine, such as a serial work queue.
package correlator
