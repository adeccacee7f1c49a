// Package chatengine implements a chat client's message-delivery and
// synchronization engine.
//
// The engine tracks a message from optimistic local creation through
// network transmission, delivery acknowledgement, and read
// confirmation, tolerating offline periods, partial failures, and
// out-of-order network events. It preserves per-conversation send
// order, merges authoritative remote updates into locally-optimistic
// state without duplication or regression, aggregates per-recipient
// delivery/read sets into a single display status, and recovers from
// transient failures without user intervention.
//
// # Getting Started
//
// Construct an [Engine] per conversation, wiring the collaborators it
// consumes, then register callbacks and drive it from the presentation
// layer:
//
//	store, err := storage.Open(cfg.DataDir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rs, err := remote.Dial(cfg.RemoteURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rs.Close()
//
//	conn := connectivity.NewMonitor(true)
//	eng, err := chatengine.New(cfg, conv, selfID, selfName, rs, store, conn, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	eng.OnMessagesChanged(func(msgs []*message.Message) { redraw(msgs) })
//	eng.OnTypingChanged(func(text string) { drawTyping(text) })
//
//	id, err := eng.SendMessage("hello")
//
// The presentation layer only ever calls SendMessage, RetryMessage,
// DeleteMessage, MarkRead, StartTyping, and StopTyping; it observes
// state through the registered callbacks and the snapshot accessors,
// never by mutating engine fields.
//
// # Concurrency
//
// Each engine serializes all mutation of its conversation's message
// list, queue entries, and typing state behind one mutex. Network and
// persistence I/O run on background goroutines and re-enter that
// serialized context before touching shared state. A single outbound
// worker per engine drains sends in FIFO order, which is what makes the
// optimistic local order and the remote-confirmed order identical.
// Closing the engine cancels its subscription and broadcasts a
// typing-stop, but an in-flight send or queue drain always runs to
// completion.
package chatengine
