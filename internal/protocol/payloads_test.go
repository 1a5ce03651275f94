package protocol

import (
	"encoding/json"
	"testing"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		msg    Message
		want   string
		wantOK bool
	}{
		{
			name:   "notification",
			msg:    Message{Type: TypeNotification, Payload: json.RawMessage(`{"id":"n1","title":"Build done","type":"success","category":"ci"}`)},
			want:   `success "Build done" (ci)`,
			wantOK: true,
		},
		{
			name:   "task update",
			msg:    Message{Type: TypeTaskUpdate, Payload: json.RawMessage(`{"taskId":"t1","projectId":"p1","action":"status_changed","updatedBy":{"id":"u1","name":"Sam"}}`)},
			want:   "task t1 status_changed by Sam",
			wantOK: true,
		},
		{
			name:   "document update without name",
			msg:    Message{Type: TypeDocumentUpdate, Payload: json.RawMessage(`{"documentId":"d1","action":"user_joined","user":{"id":"u2"}}`)},
			want:   "document d1 user_joined by u2",
			wantOK: true,
		},
		{
			name:   "user status",
			msg:    Message{Type: TypeUserStatus, Payload: json.RawMessage(`{"userId":"u3","status":"away","lastSeen":"2024-01-01T10:00:00Z"}`)},
			want:   "user u3 away (last seen 2024-01-01T10:00:00Z)",
			wantOK: true,
		},
		{
			name:   "user status without last seen",
			msg:    Message{Type: TypeUserStatus, Payload: json.RawMessage(`{"userId":"u3","status":"online"}`)},
			want:   "user u3 online",
			wantOK: true,
		},
		{
			name: "unknown type",
			msg:  Message{Type: TypeChatMessage, Payload: json.RawMessage(`{"text":"hi"}`)},
		},
		{
			name: "malformed payload",
			msg:  Message{Type: TypeTaskUpdate, Payload: json.RawMessage(`["not","an","object"]`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Describe(tt.msg)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Describe() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTaskUpdatePayload_Decode(t *testing.T) {
	msg, err := NewMessage(TypeTaskUpdate, "updated", TaskUpdatePayload{
		TaskID:    "t9",
		ProjectID: "p2",
		Action:    "assigned",
		Data:      map[string]any{"assignee": "u5"},
		UpdatedBy: Person{ID: "u1", Name: "Sam", Color: "#ff0000"},
	}, "")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	var p TaskUpdatePayload
	if err := msg.UnmarshalPayload(&p); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if p.TaskID != "t9" || p.Data["assignee"] != "u5" || p.UpdatedBy.Color != "#ff0000" {
		t.Errorf("decoded = %+v", p)
	}
}
