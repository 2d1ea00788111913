package kel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ParseStream decodes a stream of concatenated JSON signed events, the body
// format of event submissions and the bytes served for an event log.
// Whitespace between events is ignored; unknown fields are rejected.
func ParseStream(data []byte) ([]SignedEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var events []SignedEvent
	for {
		var ev SignedEvent
		err := dec.Decode(&ev)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errorf(ErrCodeMalformed, "", int64(len(events)), "decode event %d: %v", len(events), err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, errorf(ErrCodeMalformed, "", 0, "empty event stream")
	}
	return events, nil
}

// EncodeStream writes events as canonical JSON, one per line.
func EncodeStream(events []SignedEvent) ([]byte, error) {
	var buf bytes.Buffer
	for i, ev := range events {
		data, err := ev.MarshalCanonical()
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", i, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
