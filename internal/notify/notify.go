// Package notify shows desktop notifications for scrobbles.
package notify

import "fmt"

// Urgency is the freedesktop notification priority.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notification contains data for a desktop notification.
type Notification struct {
	Title      string  // Summary text (required)
	Body       string  // Body text (optional)
	Timeout    int32   // ms, -1 = server default, 0 = never expire
	ReplacesID uint32  // 0 = new notification, >0 = replace existing
	Urgency    Urgency // Low, Normal, Critical
}

// Notifier sends desktop notifications.
type Notifier interface {
	// Notify sends a notification and returns its ID.
	// Returns 0 and nil error if notifications are unavailable.
	Notify(n Notification) (uint32, error)
	// Close closes a notification by ID.
	Close(id uint32) error
}

// Scrobbled builds the notification shown after a track was scrobbled.
// Passing the previous ID keeps a single notification on screen.
func Scrobbled(title, artist, album string, replaces uint32) Notification {
	body := artist
	if album != "" {
		body = fmt.Sprintf("%s - %s", artist, album)
	}
	return Notification{
		Title:      "Scrobbled: " + title,
		Body:       body,
		Timeout:    5000,
		ReplacesID: replaces,
		Urgency:    UrgencyLow,
	}
}

// Nop returns a Notifier that discards everything.
func Nop() Notifier {
	return &stubNotifier{}
}

// stubNotifier is used when no notification service is reachable.
type stubNotifier struct{}

func (s *stubNotifier) Notify(_ Notification) (uint32, error) {
	return 0, nil
}

func (s *stubNotifier) Close(_ uint32) error {
	return nil
}
