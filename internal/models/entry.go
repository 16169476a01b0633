package models

// Entry pairs a desired attachment with an optional local file path.
// Path may also be an s3://bucket/key reference. An empty Path means the
// attachment has no file payload (links, or already-known attachments).
type Entry struct {
	Attachment *Attachment
	Path       string
}

// Action is the outcome recorded for a remote attachment during synchronization.
type Action string

const (
	ActionKept      Action = "kept"
	ActionUpdated   Action = "updated"
	ActionCreated   Action = "created"
	ActionDeleted   Action = "deleted"
	ActionReordered Action = "reordered"
)

// Result describes what happened to one desired entry.
type Result struct {
	Entry  Entry
	Action Action
}

// Report summarizes a synchronization run.
type Report struct {
	// RunID identifies the run in logs and in the journal.
	RunID string

	// Results holds one item per desired entry, in caller order.
	Results []Result

	// Deleted lists the remote ids removed because nothing desired matched them.
	Deleted []int64

	// Order is the display order sent to the service; nil when unchanged.
	Order []int64
}
