package api

// CreateChatRequest creates a new chat.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// CreateMessageRequest submits a user message and starts an agent run.
type CreateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ResumeRequest answers a human-in-the-loop interrupt on a message.
type ResumeRequest struct {
	// Action is one of accept, edit, respond, ignore.
	Action string `json:"action" binding:"required"`

	// Payload carries the edited arguments or the user's response,
	// depending on the action.
	Payload string `json:"payload"`
}

// resumeActions are the accepted ResumeRequest actions.
var resumeActions = map[string]bool{
	"accept":  true,
	"edit":    true,
	"respond": true,
	"ignore":  true,
}
