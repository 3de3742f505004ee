package chat

// Attachment is decoded binary content sent inline to the model.
type Attachment struct {
	MimeType string
	Data     []byte
}

// GenerationRequest exists only for the duration of one outbound call.
type GenerationRequest struct {
	Prompt     string
	Attachment *Attachment
	History    []HistoryMessage
}
