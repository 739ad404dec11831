// Package mqtt provides MQTT client connectivity for hars-imp.
//
// This package manages:
//   - Connection to the broker with auto-reconnect once established
//   - Message publishing, synchronous or tracked-asynchronous
//   - Topic subscriptions routed to an event queue, restored on reconnect
//   - Connection loss and restore logging through an optional Logger
//   - Last Will and Testament (LWT) so Home Assistant sees the agent go "Off"
//   - Home Assistant topic naming
//
// # Event queue
//
// Messages on queued subscriptions and connection losses are pushed onto a
// bounded queue that the agent's main loop reads with Events or Poll. The
// queue never blocks paho: when it is full the oldest event is dropped.
//
// # Disconnecting
//
// Before disconnecting, callers Flush (or Poll) so tracked publishes such as
// the final status have a chance to leave the client. Disconnect reports a
// connection the peer already closed as ErrAlreadyClosed; IsExpectedDisconnect
// classifies that and similar transport errors as normal.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	topics := mqtt.Topics{Host: cfg.Hostname}
//	_ = client.SubscribeQueued(topics.ButtonCommand("Lock Screen"), 1)
//	for ev := range client.Events() {
//	    ...
//	}
package mqtt
