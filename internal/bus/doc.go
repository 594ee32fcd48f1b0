// Package bus is the message transport between spamfire agents.
//
// Each agent attaches to a [Hub] through a [Port]. A port owns a [Mailbox]:
// an ordered queue from which the agent takes messages with a
// [Template] predicate, without blocking. When nothing matches, the agent
// parks on [Port.Wait] until another message arrives.
//
//	hub := bus.NewHub(bus.Config{Name: "run-1"})
//	port, _ := hub.Register("Consumer1")
//
//	msg := bus.NewInform("Spammer1", "AAA", "Consumer1", "Consumer2").Tag("spam").Build()
//	_ = hub.Send(ctx, msg)
//
//	tmpl := bus.And(bus.MatchPerformative(bus.Inform), bus.MatchTag("spam"))
//	for port.Receive(tmpl) == nil {
//		_ = port.Wait(ctx)
//	}
//
// Sending one message to several receivers delivers an independent copy to
// each. Order is preserved per sender and receiver. A bounded mailbox
// (Config.MailboxCapacity) makes senders wait for room.
//
// The wsbridge subpackage exposes a Hub over websocket so agents can run in
// separate processes.
package bus
