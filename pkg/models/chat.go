package models

type Chat struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	// Participants holds profile ids; each id is a membership key in the
	// chats by_participant index.
	Participants []string `json:"participants"`
	// LastMessageID is a back-reference to the newest message; readers
	// must tolerate it dangling after a message delete.
	LastMessageID string `json:"lastMessageId,omitempty"`
	Pinned        bool   `json:"pinned,omitempty"`
	Archived      bool   `json:"archived,omitempty"`
	CreatedTS     int64  `json:"createdTs,omitempty"`
}

type Message struct {
	ID     string `json:"id"`
	ChatID string `json:"chatId"`
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text,omitempty"`
	// Time is the send timestamp (ms); backs the messages by_time index.
	Time int64 `json:"time"`
	// Optional reply-to message ID within the same chat
	ReplyTo string `json:"replyTo,omitempty"`
	Edited  bool   `json:"edited,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}
