package session

// Frame types carried on the session channel. Inbound frames carry a
// server-assigned sequence number that increases by one per frame;
// the hello frame is unnumbered.
const (
	frameHello     = "hello"
	frameToken     = "token"
	frameStatus    = "status"
	frameFileApply = "file_apply"
	frameError     = "error"
	frameDone      = "done"

	frameChat      = "chat"
	frameAgentTask = "agent_task"
	frameAttach    = "attach"
	frameAck       = "ack"
	frameCancel    = "cancel"
)

// AttachedFile is one context file sent with a chat turn. Content is
// base64 on the wire.
type AttachedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// frame is the wire envelope for every message in both directions.
// Unused fields stay empty per type.
type frame struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq,omitempty"`

	// hello
	SessionID string `json:"session_id,omitempty"`
	Resumed   bool   `json:"resumed,omitempty"`

	// chat, agent_task, token, error
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Code    string `json:"code,omitempty"`

	// status
	Event  string `json:"event,omitempty"`
	Detail string `json:"detail,omitempty"`

	// file_apply
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`

	// attach
	Files []AttachedFile `json:"files,omitempty"`

	// ack
	AfterSeq int64 `json:"after_seq,omitempty"`
}
