package domain

import "time"

// Message is a single chat entry. Immutable once stored.
// JSON tags match the client wire protocol.
type Message struct {
	Name string `json:"name"`
	Body string `json:"message"`
	TS   int64  `json:"ts"`
}

// NewMessage stamps a message with the current wall clock in unix milliseconds.
func NewMessage(name, body string) Message {
	return Message{Name: name, Body: body, TS: time.Now().UnixMilli()}
}
