package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind discriminates the events pushed to clients. The greeting is the only
// event keyed by "event" rather than "type".
type Kind string

const (
	KindGreeting  Kind = "greeting"
	KindInfo      Kind = "download_info"
	KindProgress  Kind = "download_progress"
	KindComplete  Kind = "download_complete"
	KindCancelled Kind = "download_cancelled"
	KindError     Kind = "download_error"
	KindMessage   Kind = "message"
)

// Event is one server-to-client message. The set is closed: only the types
// in this package implement it.
type Event interface {
	Kind() Kind
	sealed()
}

// Sink delivers events to one client. Delivery is best-effort.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Greeting is sent once when a connection opens.
type Greeting struct {
	Message string `json:"event"`
	ID      string `json:"id"`
}

// Info carries the final chosen filename before any byte is written.
type Info struct {
	Filename string `json:"filename"`
}

// Progress is emitted per chunk when the total size is known.
type Progress struct {
	Progress        int   `json:"progress"`
	DownloadedBytes int64 `json:"downloadedBytes"`
	TotalBytes      int64 `json:"totalBytes"`
}

// Complete is emitted once the file is on disk. Progress is always 100.
type Complete struct{}

// Cancelled acknowledges a cancelled transfer.
type Cancelled struct{}

// Error reports a failed transfer or rejected request.
type Error struct {
	Message string `json:"message"`
}

// Message is the echo reply.
type Message struct {
	Message string `json:"message"`
}

func (Greeting) Kind() Kind  { return KindGreeting }
func (Info) Kind() Kind      { return KindInfo }
func (Progress) Kind() Kind  { return KindProgress }
func (Complete) Kind() Kind  { return KindComplete }
func (Cancelled) Kind() Kind { return KindCancelled }
func (Error) Kind() Kind     { return KindError }
func (Message) Kind() Kind   { return KindMessage }

func (Greeting) sealed()  {}
func (Info) sealed()      {}
func (Progress) sealed()  {}
func (Complete) sealed()  {}
func (Cancelled) sealed() {}
func (Error) sealed()     {}
func (Message) sealed()   {}

// Encode renders e in its wire form.
func Encode(e Event) ([]byte, error) {
	var payload any

	switch ev := e.(type) {
	case Greeting:
		payload = ev
	case Info:
		payload = struct {
			Type Kind `json:"type"`
			Info
		}{KindInfo, ev}
	case Progress:
		payload = struct {
			Type Kind `json:"type"`
			Progress
		}{KindProgress, ev}
	case Complete:
		payload = struct {
			Type     Kind `json:"type"`
			Progress int  `json:"progress"`
		}{KindComplete, 100}
	case Cancelled:
		payload = struct {
			Type Kind `json:"type"`
		}{KindCancelled}
	case Error:
		payload = struct {
			Type Kind `json:"type"`
			Error
		}{KindError, ev}
	case Message:
		payload = struct {
			Type Kind `json:"type"`
			Message
		}{KindMessage, ev}
	default:
		return nil, fmt.Errorf("notify: unknown event %T", e)
	}

	return json.Marshal(payload)
}
