package domain

import "time"

// ChatMessage is a single turn of a conversation with the digital twin.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatSession is an archived conversation transcript.
type ChatSession struct {
	ID         int64
	Transcript string
	CreatedAt  time.Time
}
