// Package stream defines the change-notification contract between the
// keyed store and the aggregation pipeline: a per-key-ordered,
// at-least-once feed of insert/update events carrying the new record
// image, consumed through server-side-style filters.
package stream

import (
	"context"
	"strings"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
)

type EventName string

const (
	Insert EventName = "INSERT"
	Modify EventName = "MODIFY"
	Remove EventName = "REMOVE"
)

// Event is one change notification from the keyed store.
type Event struct {
	Name     EventName   `json:"eventName"`
	Keys     domain.Key  `json:"keys"`
	NewImage domain.Item `json:"newImage"`
}

// Filter selects the events a consumer wants delivered: an event-name
// set plus a prefix or equality predicate on the sort key.
type Filter struct {
	Names        []EventName
	TypeEquals   string
	TypePrefixes []string
}

func (f Filter) Match(event Event) bool {
	if len(f.Names) > 0 {
		matched := false
		for _, name := range f.Names {
			if event.Name == name {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.TypeEquals != "" && event.Keys.Type != f.TypeEquals {
		return false
	}

	if len(f.TypePrefixes) > 0 {
		for _, prefix := range f.TypePrefixes {
			if strings.HasPrefix(event.Keys.Type, prefix) {
				return true
			}
		}
		return false
	}

	return true
}

// Handler processes one delivered event. A nil return acknowledges the
// delivery; a non-nil return leaves it pending for redelivery.
type Handler func(ctx context.Context, event Event) error

// Publisher appends change events to the stream.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
