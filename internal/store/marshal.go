package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/kelwitness/internal/canon"
	"github.com/roach88/kelwitness/internal/kel"
)

// marshalEvent converts a signed event to canonical JSON TEXT for storage.
// The stored bytes are exactly what the event-log endpoint serves.
func marshalEvent(ev kel.SignedEvent) (string, error) {
	data, err := ev.MarshalCanonical()
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(data), nil
}

func unmarshalEvent(text string) (kel.SignedEvent, error) {
	var ev kel.SignedEvent
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return kel.SignedEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

// marshalState converts a key state to canonical JSON TEXT for storage.
func marshalState(st kel.KeyState) (string, error) {
	m := map[string]any{
		"identifier":        string(st.Identifier),
		"sequence_number":   st.SequenceNumber,
		"last_event_type":   string(st.LastEventType),
		"last_digest":       string(st.LastDigest),
		"signing_threshold": st.SigningThreshold,
		"signing_keys":      append([]string{}, st.SigningKeys...),
	}
	if st.NextKeyCommitment != "" {
		m["next_key_commitment"] = string(st.NextKeyCommitment)
	}
	data, err := canon.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), nil
}

func unmarshalState(text string) (kel.KeyState, error) {
	var st kel.KeyState
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		return kel.KeyState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return st, nil
}
