// Package model defines the core domain models used throughout the application.
package model

import "time"

// InboundMessage is a single notification email as fetched from the message
// source. It is immutable once fetched; the body is plain text (or derived
// from HTML by the source).
type InboundMessage struct {
	Date    time.Time
	ID      string
	From    string
	Subject string
	Body    string
	Snippet string
}
