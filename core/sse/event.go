// Package sse writes Server-Sent Events over streamed response bodies and
// fans published events out to subscribers through a Broker.
package sse

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event represents a Server-Sent Event
type Event struct {
	ID    string
	Event string
	Data  string
	Retry int // milliseconds
}

// Format encodes event in the text/event-stream format. Multi-line data is
// split into one data field per line.
func Format(event Event) []byte {
	var b strings.Builder
	if event.ID != "" {
		b.WriteString("id: " + event.ID + "\n")
	}
	if event.Event != "" {
		b.WriteString("event: " + event.Event + "\n")
	}
	if event.Retry > 0 {
		b.WriteString("retry: " + strconv.Itoa(event.Retry) + "\n")
	}
	if event.Data != "" {
		for line := range strings.SplitSeq(event.Data, "\n") {
			b.WriteString("data: " + strings.TrimSuffix(line, "\r") + "\n")
		}
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// Comment encodes a comment line, which clients ignore.
func Comment(text string) []byte {
	return []byte(": " + text + "\n\n")
}

// JSONEvent builds an event whose data is v encoded as JSON.
func JSONEvent(eventType string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: eventType, Data: string(data)}, nil
}

func MessageEvent(message string) Event {
	return Event{Event: "message", Data: message}
}

func HeartbeatEvent() Event {
	return Event{Event: "heartbeat", Data: "timestamp:" + strconv.FormatInt(time.Now().Unix(), 10)}
}

type progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

func ProgressEvent(current, total int, message string) Event {
	ev, _ := JSONEvent("progress", progress{Current: current, Total: total, Message: message})
	return ev
}
