package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrFormat is returned for raw payloads that cannot become an event.
var ErrFormat = errors.New("format error - event message")

// PublishDateLayout is the layout of eventData.publishDate.
const PublishDateLayout = "02-01-2006T15:04:05"

type rawPayload struct {
	EventData *struct {
		Operation      *string `json:"operation"`
		Type           *string `json:"type"`
		TrxID          *string `json:"trxId"`
		Identification *string `json:"identification"`
		PublishDate    *string `json:"publishDate"`
	} `json:"eventData"`
}

// ParseEvent builds a pending event from a raw origin payload. The payload is
// kept verbatim as the event source. Any missing field, bad publish date or
// unknown operation alias yields an error wrapping ErrFormat.
func ParseEvent(originID int64, source string, transactionID int64, ops *Operations, dequeuedAt time.Time) (*Event, error) {
	var raw rawPayload
	if err := json.Unmarshal([]byte(source), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	d := raw.EventData
	if d == nil {
		return nil, fmt.Errorf("%w: missing eventData", ErrFormat)
	}
	for _, f := range []struct {
		name string
		val  *string
	}{
		{"operation", d.Operation},
		{"type", d.Type},
		{"trxId", d.TrxID},
		{"identification", d.Identification},
		{"publishDate", d.PublishDate},
	} {
		if f.val == nil {
			return nil, fmt.Errorf("%w: missing eventData.%s", ErrFormat, f.name)
		}
	}

	published, err := time.ParseInLocation(PublishDateLayout, *d.PublishDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: publishDate: %v", ErrFormat, err)
	}
	op, err := ops.ByName(*d.Operation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	return &Event{
		OriginID:       originID,
		Operation:      op,
		Identification: *d.Identification,
		Type:           *d.Type,
		TransactionID:  transactionID,
		TrxID:          *d.TrxID,
		PublishedAt:    published,
		DequeuedAt:     dequeuedAt,
		UpdatedAt:      dequeuedAt,
		State:          StatePending,
		Source:         source,
	}, nil
}
