package protocol

import "fmt"

// Payload shapes for the well-known message types. They are conveniences
// for subscribers; the router itself never looks inside a payload.

// Person identifies the user behind an update.
type Person struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`
}

// NotificationPayload is carried by TypeNotification.
type NotificationPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Level     string `json:"type"` // info, success, warning, error
	Category  string `json:"category"`
	Link      string `json:"link,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

// TaskUpdatePayload is carried by TypeTaskUpdate.
type TaskUpdatePayload struct {
	TaskID    string         `json:"taskId"`
	ProjectID string         `json:"projectId"`
	Action    string         `json:"action"` // created, updated, deleted, status_changed, assigned
	Data      map[string]any `json:"data"`
	UpdatedBy Person         `json:"updatedBy"`
}

// DocumentUpdatePayload is carried by TypeDocumentUpdate.
type DocumentUpdatePayload struct {
	DocumentID string         `json:"documentId"`
	Action     string         `json:"action"` // content_changed, cursor_moved, user_joined, user_left, comment_added
	Data       map[string]any `json:"data"`
	User       Person         `json:"user"`
}

// UserStatusPayload is carried by TypeUserStatus.
type UserStatusPayload struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"` // online, offline, away, busy
	LastSeen string `json:"lastSeen,omitempty"`
}

// Describe renders a one-line summary of a well-known payload. It returns
// false for other types and for payloads that do not decode.
func Describe(m Message) (string, bool) {
	switch m.Type {
	case TypeNotification:
		var p NotificationPayload
		if m.UnmarshalPayload(&p) != nil {
			return "", false
		}
		return fmt.Sprintf("%s %q (%s)", p.Level, p.Title, p.Category), true

	case TypeTaskUpdate:
		var p TaskUpdatePayload
		if m.UnmarshalPayload(&p) != nil {
			return "", false
		}
		return fmt.Sprintf("task %s %s by %s", p.TaskID, p.Action, p.UpdatedBy.label()), true

	case TypeDocumentUpdate:
		var p DocumentUpdatePayload
		if m.UnmarshalPayload(&p) != nil {
			return "", false
		}
		return fmt.Sprintf("document %s %s by %s", p.DocumentID, p.Action, p.User.label()), true

	case TypeUserStatus:
		var p UserStatusPayload
		if m.UnmarshalPayload(&p) != nil {
			return "", false
		}
		if p.LastSeen != "" {
			return fmt.Sprintf("user %s %s (last seen %s)", p.UserID, p.Status, p.LastSeen), true
		}
		return fmt.Sprintf("user %s %s", p.UserID, p.Status), true
	}
	return "", false
}

func (p Person) label() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.ID != "":
		return p.ID
	default:
		return "unknown"
	}
}
