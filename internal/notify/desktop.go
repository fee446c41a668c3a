package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyIface  = "org.freedesktop.Notifications"
	criticalHint = 2 // urgency levels: 0 low, 1 normal, 2 critical
)

// DesktopPresenter posts freedesktop notifications over the session bus.
// Ringing notifications are critical and sticky; missed and snoozed ones use
// the server's default timeout. Notification ids are tracked per event so
// Cancel can close the matching popup.
type DesktopPresenter struct {
	conn *dbus.Conn

	mu     sync.Mutex
	posted map[int64]uint32
}

func NewDesktopPresenter() (*DesktopPresenter, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DesktopPresenter{conn: conn, posted: make(map[int64]uint32)}, nil
}

func (p *DesktopPresenter) Close() error {
	return p.conn.Close()
}

func (p *DesktopPresenter) PostRinging(s Snapshot) error {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(criticalHint)),
	}
	// expire timeout 0 = never: a ringing event stays up until acted on.
	return p.post(s, "🔔 "+title(s), hints, 0)
}

func (p *DesktopPresenter) PostMissed(s Snapshot) error {
	return p.post(s, "Missed: "+title(s), nil, -1)
}

func (p *DesktopPresenter) PostSnoozed(s Snapshot) error {
	return p.post(s, "Snoozed: "+title(s), nil, -1)
}

func (p *DesktopPresenter) post(s Snapshot, summary string, hints map[string]dbus.Variant, timeout int32) error {
	p.mu.Lock()
	replaces := p.posted[s.ID]
	p.mu.Unlock()

	if hints == nil {
		hints = map[string]dbus.Variant{}
	}

	obj := p.conn.Object(notifyDest, notifyPath)
	call := obj.Call(notifyIface+".Notify", 0,
		"chimed", replaces, "alarm-clock", summary, s.Body, []string{}, hints, timeout)
	if call.Err != nil {
		return fmt.Errorf("post notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("read notification id: %w", err)
	}

	p.mu.Lock()
	p.posted[s.ID] = id
	p.mu.Unlock()
	return nil
}

// Cancel closes the notification posted for the event id, if any.
func (p *DesktopPresenter) Cancel(id int64) error {
	p.mu.Lock()
	nid, ok := p.posted[id]
	if ok {
		delete(p.posted, id)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}

	call := p.conn.Object(notifyDest, notifyPath).Call(notifyIface+".CloseNotification", 0, nid)
	if call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	return nil
}
