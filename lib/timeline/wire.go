// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// wire is the JSON codec for data-socket frames. ConfigStd keeps the
// output byte-compatible with encoding/json (sorted map keys, HTML
// escaping) so frames from either side compare equal in tests.
var wire = sonic.ConfigStd

// Direction is the shape of a window request.
type Direction string

const (
	DirectionTail   Direction = "tail"
	DirectionBefore Direction = "before"
	DirectionAfter  Direction = "after"
)

// ErrUnknownDirection is returned by [ParseDirection] for anything
// other than tail, before, or after.
var ErrUnknownDirection = errors.New("unknown timeline direction")

// ParseDirection validates a direction string.
func ParseDirection(value string) (Direction, error) {
	switch direction := Direction(value); direction {
	case DirectionTail, DirectionBefore, DirectionAfter:
		return direction, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, value)
	}
}

// MessageType names the payload carried by an [Envelope].
type MessageType string

const (
	MessageFetchTimelineRequest  MessageType = "fetch_agent_timeline_request"
	MessageFetchTimelineResponse MessageType = "fetch_agent_timeline_response"
	MessageAgentStream           MessageType = "agent_stream"
)

// Envelope is the outer frame of every data-socket message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// EncodeEnvelope marshals payload and wraps it in an envelope of the
// given type.
func EncodeEnvelope(messageType MessageType, requestID string, payload any) ([]byte, error) {
	encodedPayload, err := wire.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", messageType, err)
	}
	frame, err := wire.Marshal(Envelope{
		Type:      messageType,
		RequestID: requestID,
		Payload:   encodedPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", messageType, err)
	}
	return frame, nil
}

// DecodeEnvelope parses the outer frame. The payload stays raw until
// [Envelope.DecodePayload] is called with the type the caller expects.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := wire.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if envelope.Type == "" {
		return Envelope{}, errors.New("decoding envelope: missing type")
	}
	return envelope, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (envelope Envelope) DecodePayload(target any) error {
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("decoding %s payload: empty", envelope.Type)
	}
	if err := wire.Unmarshal(envelope.Payload, target); err != nil {
		return fmt.Errorf("decoding %s payload: %w", envelope.Type, err)
	}
	return nil
}

// FetchRequest asks the daemon for a window of an agent's log.
type FetchRequest struct {
	AgentID   string     `json:"agentId"`
	Direction Direction  `json:"direction"`
	Cursor    *SeqCursor `json:"cursor,omitempty"`
	Limit     int        `json:"limit,omitempty"`

	// Projected makes Limit count projected entries; the daemon then
	// widens the returned rows with [SelectWindowByProjectedLimit].
	Projected bool `json:"projected,omitempty"`
}

// TimelineResponse answers a [FetchRequest].
type TimelineResponse struct {
	AgentID     string     `json:"agentId"`
	Direction   Direction  `json:"direction"`
	Reset       bool       `json:"reset"`
	Epoch       string     `json:"epoch"`
	StartCursor *SeqCursor `json:"startCursor"`
	EndCursor   *SeqCursor `json:"endCursor"`
	Entries     []Entry    `json:"entries"`

	// Error is set when the daemon could not serve the request and is
	// encoded as null otherwise. No other field is meaningful when set.
	Error *string `json:"error"`
}

// FailedResponse reports that a request for agentID could not be
// served.
func FailedResponse(agentID string, direction Direction, message string) TimelineResponse {
	return TimelineResponse{AgentID: agentID, Direction: direction, Error: &message}
}

// Failure returns the error text and whether the response carries one.
func (response TimelineResponse) Failure() (string, bool) {
	if response.Error == nil {
		return "", false
	}
	return *response.Error, true
}

// StreamEventType discriminates live agent events.
type StreamEventType string

const (
	StreamTimeline      StreamEventType = "timeline"
	StreamTurnStarted   StreamEventType = "turn_started"
	StreamTurnCompleted StreamEventType = "turn_completed"
	StreamTurnFailed    StreamEventType = "turn_failed"
)

// StreamEvent is one live event from an agent. Item is set only for
// timeline events.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Provider string          `json:"provider,omitempty"`
	Item     *Item           `json:"item,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// AgentStreamMessage carries a live event. Seq and Epoch are present
// for timeline events, which are also entries of the canonical log.
type AgentStreamMessage struct {
	AgentID   string      `json:"agentId"`
	Event     StreamEvent `json:"event"`
	Seq       *int64      `json:"seq,omitempty"`
	Epoch     string      `json:"epoch,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StampedEntries returns the response rows stamped with the response epoch.
// The returned slice is a copy.
func (response TimelineResponse) StampedEntries() []Entry {
	entries := make([]Entry, len(response.Entries))
	for index, entry := range response.Entries {
		if entry.Epoch == "" {
			entry.Epoch = response.Epoch
		}
		entries[index] = entry
	}
	return entries
}
