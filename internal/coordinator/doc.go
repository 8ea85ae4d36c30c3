// Package coordinator runs the multi-device messaging protocol for one
// account on top of a session engine, a record store and an asynchronous
// transport.
//
// # Queues
//
// Every protocol step runs on a single serial work queue: request
// registration, event handling and store transactions. Caller completions
// and user notifications run on a separate serial callback queue.
//
// # Requests
//
// Requests that expect an answer (bundle fetches, device-list fetches,
// device removal) are registered with a correlator under a fresh token
// before the transport sees them. The answering event resolves the token.
// Unanswered tokens fail after the configured timeout and at Close.
//
// # Sending
//
// EncryptAndSend first prepares sessions with the buddy's devices and the
// account's other devices, then seals the body once with AES-GCM and wraps
// the key for each trusted device.
//
// # Receiving
//
// KeyDataReceived events are decrypted with the key entry addressed to this
// device. Messages that cannot be decrypted are dropped and logged at debug
// level.
package coordinator
