// Package power integrates the agent with systemd-logind.
//
// It owns three things:
//
//   - Bus: a broadcast channel of sleep/wake events. Publishing never blocks;
//     a subscriber that falls behind loses its oldest events and is told how
//     many it missed.
//   - Manager: acquires and releases "delay" inhibitor locks for the sleep
//     and shutdown classes. Holding a lock gives the agent a bounded window to
//     publish its status and disconnect before the transition proceeds.
//   - Monitor: turns logind's PrepareForSleep(bool) signal into Suspending and
//     Resuming events on the Bus. When logind is unreachable (containers, CI)
//     it idles until its context ends rather than exiting.
//
// The D-Bus side is reached through the Dialer and Conn interfaces; the
// production implementation in logind.go uses github.com/godbus/dbus/v5.
package power
