// Package remote provides RemoteStore implementations.
//
// [Client] speaks JSON frames over a gorilla/websocket connection to a
// chat backend: create/update/delete are sequence-numbered requests
// acknowledged by the server, typing signals are fire-and-forget, and
// inbound event frames fan out to per-conversation subscribers. Writes
// are serialized with a mutex because the websocket connection permits
// a single concurrent writer.
//
// [Memory] is an in-process fake with the same upsert and event
// semantics plus failure injection. Engine tests and simulations run
// against it; it also documents the contract a real backend must honor.
package remote
