package chat

// Roles accepted in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FileData is an inline attachment sent with a chat message.
type FileData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// HistoryMessage is one prior turn supplied by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body accepted by POST /api/chat. Message selects the
// single-turn streaming contract, Messages the multi-turn one.
type ChatRequest struct {
	Message  string           `json:"message"`
	FileData *FileData        `json:"fileData,omitempty"`
	Messages []HistoryMessage `json:"messages,omitempty"`
}

// ChatResponse is the non-streaming reply.
type ChatResponse struct {
	Response string `json:"response"`
}
