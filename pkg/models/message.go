package models

// Status tracks how far a message has travelled: the sender wrote it,
// the recipient's device received it, the recipient read it.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses for monotonicity checks. Unknown statuses rank
// below StatusSent so they can never overwrite a real one.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return s.Rank() > 0 }

// Message is the canonical message record, both on the wire and at rest.
// IDs are assigned once, process-wide, and never reused; TS is UTC
// nanoseconds and is refreshed when the text is edited.
type Message struct {
	ID   uint64 `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text,omitempty"`
	TS   int64  `json:"ts"`

	// Optional attachment. Content is opaque bytes (base64 in JSON);
	// the hub never interprets it.
	IsFile      bool   `json:"is_file,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileContent []byte `json:"file_content,omitempty"`

	Status Status `json:"status"`

	// Deleted marks a tombstone. Tombstones keep their id and stay in
	// the store until the retention sweep purges them.
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`
}
