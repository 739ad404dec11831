// Package components implements the Home Assistant entities a host exposes
// over MQTT: buttons that run a shell command, switches backed by a shell
// command or a D-Bus method, and a notify entity that raises desktop
// notifications.
//
// A Set is built once per MQTT session from the configuration. It reports
// the topics to subscribe to and the discovery components to announce, and
// Dispatch routes each incoming message to the entity that owns its topic.
//
//	set, err := components.NewSet(cfg, deps)
//	for _, topic := range set.Topics() {
//	    client.SubscribeQueued(topic, 0)
//	}
//	handled, err := set.Dispatch(ctx, msg.Topic, msg.Payload)
package components
