package components

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// ErrNoDBus is returned when an entity needs D-Bus but none is configured.
var ErrNoDBus = errors.New("components: no D-Bus access configured")

// BusKind selects the session or system bus. Empty means session.
type BusKind string

const (
	SessionBus BusKind = "session"
	SystemBus  BusKind = "system"
)

// MethodCall describes a D-Bus method invocation.
type MethodCall struct {
	Bus       BusKind
	Service   string
	Path      string
	Interface string
	Method    string
	Args      []any
}

// MethodCaller invokes D-Bus methods.
type MethodCaller interface {
	Call(ctx context.Context, m MethodCall) error
}

// Notifier raises desktop notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// connectFunc opens a private bus connection.
type connectFunc func(opts ...dbus.ConnOption) (*dbus.Conn, error)

// DBusCaller calls methods over a fresh connection per call.
type DBusCaller struct {
	session connectFunc
	system  connectFunc
}

// NewDBusCaller returns a caller using the real session and system buses.
func NewDBusCaller() *DBusCaller {
	return &DBusCaller{session: dbus.ConnectSessionBus, system: dbus.ConnectSystemBus}
}

func (c *DBusCaller) connect(ctx context.Context, bus BusKind) (*dbus.Conn, error) {
	switch bus {
	case SystemBus:
		return c.system(dbus.WithContext(ctx))
	case SessionBus, "":
		return c.session(dbus.WithContext(ctx))
	default:
		return nil, fmt.Errorf("unknown bus %q", bus)
	}
}

// Call performs m and discards any reply body.
func (c *DBusCaller) Call(ctx context.Context, m MethodCall) error {
	conn, err := c.connect(ctx, m.Bus)
	if err != nil {
		return fmt.Errorf("connecting to %s bus: %w", busName(m.Bus), err)
	}
	defer conn.Close() //nolint:errcheck

	obj := conn.Object(m.Service, dbus.ObjectPath(m.Path))
	call := obj.CallWithContext(ctx, m.Interface+"."+m.Method, 0, m.Args...)
	if call.Err != nil {
		return fmt.Errorf("calling %s.%s: %w", m.Interface, m.Method, call.Err)
	}
	return nil
}

func busName(b BusKind) string {
	if b == "" {
		return string(SessionBus)
	}
	return string(b)
}

// Desktop notification coordinates.
const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsMethod  = "org.freedesktop.Notifications.Notify"

	// NotificationAppName is shown as the notification's sender.
	NotificationAppName = "MQTT Agent"
)

// DesktopNotifier sends notifications to the session notification daemon,
// falling back to the system bus when no session bus is reachable.
type DesktopNotifier struct {
	caller *DBusCaller
}

// NewDesktopNotifier returns a notifier on the real buses.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{caller: NewDBusCaller()}
}

// Notify sends n and returns once the daemon has accepted it.
func (d *DesktopNotifier) Notify(ctx context.Context, n Notification) error {
	conn, err := d.caller.connect(ctx, SessionBus)
	if err != nil {
		var sysErr error
		conn, sysErr = d.caller.connect(ctx, SystemBus)
		if sysErr != nil {
			return fmt.Errorf("connecting to session bus: %w; system bus: %w", err, sysErr)
		}
	}
	defer conn.Close() //nolint:errcheck

	var id uint32
	call := conn.Object(notificationsService, notificationsPath).CallWithContext(ctx,
		notificationsMethod, 0, notifyArgs(n)...)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	return nil
}

// notifyArgs returns the Notify arguments: app_name, replaces_id, app_icon,
// summary, body, actions, hints, expire_timeout.
func notifyArgs(n Notification) []any {
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(uint8(n.Urgency)),
		"category": dbus.MakeVariant("im.received"),
	}
	return []any{
		NotificationAppName,
		uint32(0),
		n.Urgency.Icon(),
		n.Summary,
		n.Message,
		[]string{},
		hints,
		n.Urgency.Timeout(),
	}
}
