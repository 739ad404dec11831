// Package session owns one MQTT connection and everything bound to it: the
// command subscriptions, the status publisher and the background metrics
// task.
//
// A Builder creates sessions from static configuration. The same procedure
// runs at startup and after every resume:
//
//  1. connect with a Last Will of "Off" on the status topic
//  2. subscribe to every button, switch and notification command topic
//  3. publish the retained device-discovery message
//  4. wait briefly for Home Assistant to process discovery
//  5. publish "On"
//  6. start the metrics task
package session
