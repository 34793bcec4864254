package hub

import "chathub/pkg/models"

// Client-to-server frame types.
const (
	OpSendPrivateMessage = "send_private_message"
	OpMarkDelivered      = "mark_delivered"
	OpMarkRead           = "mark_read"
	OpEditMessage        = "edit_message"
	OpDeleteMessage      = "delete_message"
	OpGetDialogMessages  = "get_dialog_messages"
	// OpSendMessage is the legacy non-private broadcast channel.
	OpSendMessage = "send_message"
)

// Server-to-client event types.
const (
	EvReceivePrivateMessage = "receive_private_message"
	EvMessageStatusChanged  = "message_status_changed"
	EvMessageEdited         = "message_edited"
	EvMessageDeleted        = "message_deleted"
	EvDialogMessages        = "dialog_messages"
	// EvReceiveMessage mirrors OpSendMessage for the legacy channel.
	EvReceiveMessage = "receive_message"
)

// Frame is one client-to-server invocation. A single envelope covers all
// operations; unused fields stay empty. Unknown or malformed frames are
// dropped, never answered with an error (clients are trusted to be
// simple, not correct).
type Frame struct {
	Type string `json:"type"`

	// send_private_message
	To          string `json:"to,omitempty"`
	Text        string `json:"text,omitempty"`
	IsFile      bool   `json:"is_file,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileContent []byte `json:"file_content,omitempty"`

	// mark_delivered / mark_read / edit_message / delete_message
	ID uint64 `json:"id,omitempty"`

	// get_dialog_messages
	With string `json:"with,omitempty"`

	// send_message (legacy broadcast)
	User string `json:"user,omitempty"`
}

// Event is one server-to-client push. Private messages always travel as
// the full canonical Message so the wire format cannot diverge from the
// stored model.
type Event struct {
	Type string `json:"type"`

	Message  *models.Message  `json:"message,omitempty"`
	ID       uint64           `json:"id,omitempty"`
	Status   models.Status    `json:"status,omitempty"`
	Text     string           `json:"text,omitempty"`
	TS       int64            `json:"ts,omitempty"`
	With     string           `json:"with,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
	User     string           `json:"user,omitempty"`
}

// RemoteEnvelope is what the optional cross-instance relay carries: the
// event plus enough addressing for the receiving instance to scope its
// local fan-out. Persistence always happened on the origin instance.
type RemoteEnvelope struct {
	Origin    string `json:"origin"`
	Event     Event  `json:"event"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
}

// Relay publishes envelopes to sibling hub instances.
type Relay interface {
	Publish(RemoteEnvelope)
}
