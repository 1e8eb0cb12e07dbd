package events

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

type Type string

const (
	TypeCreate Type = "CREATE"
	TypeDelete Type = "DELETE"
)

// TimeLayout is the wire layout of eventCreatedAt.
const TimeLayout = "2006-01-02@15:04:05.000"

// Time marshals as TimeLayout.
type Time struct {
	time.Time
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(TimeLayout))
}

func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
	}
	t.Time = parsed
	return nil
}

// Envelope is the type-erased view of an Event used by transports.
type Envelope interface {
	EventType() Type
	EventKey() int
	EventCreatedAt() time.Time
}

// Event is a write notification keyed by product id. Data is nil for DELETE.
type Event[T any] struct {
	Type      Type `json:"eventType"`
	Key       int  `json:"key"`
	Data      *T   `json:"data"`
	CreatedAt Time `json:"eventCreatedAt"`
}

func NewCreate[T any](key int, data T, now time.Time) Event[T] {
	return Event[T]{Type: TypeCreate, Key: key, Data: &data, CreatedAt: Time{now}}
}

func NewDelete[T any](key int, now time.Time) Event[T] {
	return Event[T]{Type: TypeDelete, Key: key, CreatedAt: Time{now}}
}

func (e Event[T]) EventType() Type           { return e.Type }
func (e Event[T]) EventKey() int             { return e.Key }
func (e Event[T]) EventCreatedAt() time.Time { return e.CreatedAt.Time }

// Equivalent compares two events ignoring CreatedAt.
func (e Event[T]) Equivalent(o Event[T]) bool {
	if e.Type != o.Type || e.Key != o.Key {
		return false
	}
	if e.Data == nil || o.Data == nil {
		return e.Data == nil && o.Data == nil
	}
	return reflect.DeepEqual(*e.Data, *o.Data)
}
