// Package json converts between the streaming wire format and pulse events.
//
// The server sends each SSE event's data as a JSON object. Decoding validates
// the object at the boundary and returns a typed pulse.Event, or a
// *pulse.DecodeError describing what was wrong. Encoding is the reverse and
// is used by servers that speak the same protocol.
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fwojciec/pulse"
)

// Event names used on the wire.
const (
	EventStatus = "status"
	EventResult = "result"
	EventError  = "error"
)

// DecodeEvent parses the data of a named SSE event. Names other than status
// and result yield pulse.EventUnknown.
func DecodeEvent(name string, data []byte) (pulse.Event, error) {
	switch name {
	case EventStatus:
		msg, err := decodeStatus(data)
		if err != nil {
			return nil, &pulse.DecodeError{Event: name, Data: string(data), Err: err}
		}
		return pulse.EventStatus{Message: msg}, nil
	case EventResult:
		res, err := decodeResult(data)
		if err != nil {
			return nil, &pulse.DecodeError{Event: name, Data: string(data), Err: err}
		}
		return pulse.EventResult{Result: res}, nil
	default:
		return pulse.EventUnknown{Name: name, Data: string(data)}, nil
	}
}

// DecodeErrorMessage extracts a human-readable message from an error event.
// Payloads that are not a JSON object are returned verbatim.
func DecodeErrorMessage(data []byte) string {
	var dto errorDTO
	if err := json.Unmarshal(data, &dto); err == nil {
		switch {
		case dto.Message != "":
			return dto.Message
		case dto.Error != "":
			return dto.Error
		}
	}
	return string(bytes.TrimSpace(data))
}

func decodeStatus(data []byte) (string, error) {
	var dto statusDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return "", err
	}
	// "message" is preferred; "status" is accepted for older servers.
	if dto.Message != nil && *dto.Message != "" {
		return *dto.Message, nil
	}
	if dto.Status != nil && *dto.Status != "" {
		return *dto.Status, nil
	}
	return "", errors.New(`missing "message" or "status"`)
}

func decodeResult(data []byte) (pulse.Result, error) {
	var dto resultDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return pulse.Result{}, err
	}
	if dto.Answer == nil {
		return pulse.Result{}, errors.New(`missing "answer"`)
	}
	res := pulse.Result{
		Answer:  *dto.Answer,
		Charts:  make([]pulse.Chart, 0, len(dto.Charts)),
		Metrics: make([]pulse.Metric, 0, len(dto.Metrics)),
		Raw:     append(json.RawMessage(nil), data...),
	}
	if dto.Confidence != nil {
		res.Confidence = *dto.Confidence
	}
	for i, raw := range dto.Charts {
		var c chartDTO
		if err := json.Unmarshal(raw, &c); err != nil {
			return pulse.Result{}, fmt.Errorf("chart %d: %w", i, err)
		}
		res.Charts = append(res.Charts, pulse.Chart{Type: c.Type, Title: c.Title, Raw: raw})
	}
	for i, raw := range dto.Metrics {
		var m metricDTO
		if err := json.Unmarshal(raw, &m); err != nil {
			return pulse.Result{}, fmt.Errorf("metric %d: %w", i, err)
		}
		label := m.Label
		if label == "" {
			label = m.Name
		}
		res.Metrics = append(res.Metrics, pulse.Metric{
			Label: label,
			Value: displayValue(m.Value),
			Unit:  m.Unit,
			Raw:   raw,
		})
	}
	return res, nil
}

// displayValue renders a JSON scalar for display: strings lose their quotes,
// everything else is kept as written.
func displayValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// EncodeStatus returns the data of a status event.
func EncodeStatus(msg string) ([]byte, error) {
	return json.Marshal(statusDTO{Message: &msg})
}

// EncodeError returns the data of an error event.
func EncodeError(msg string) ([]byte, error) {
	return json.Marshal(errorDTO{Message: msg})
}

// EncodeResult returns the data of a result event. Chart and metric Raw
// descriptors are sent as-is when present.
func EncodeResult(res pulse.Result) ([]byte, error) {
	answer := res.Answer
	confidence := res.Confidence
	dto := resultDTO{
		Answer:     &answer,
		Charts:     make([]json.RawMessage, 0, len(res.Charts)),
		Metrics:    make([]json.RawMessage, 0, len(res.Metrics)),
		Confidence: &confidence,
	}
	for i, c := range res.Charts {
		raw := c.Raw
		if len(raw) == 0 {
			b, err := json.Marshal(chartDTO{Type: c.Type, Title: c.Title})
			if err != nil {
				return nil, fmt.Errorf("chart %d: %w", i, err)
			}
			raw = b
		}
		dto.Charts = append(dto.Charts, raw)
	}
	for i, m := range res.Metrics {
		raw := m.Raw
		if len(raw) == 0 {
			b, err := json.Marshal(metricDTO{Label: m.Label, Value: encodeValue(m.Value), Unit: m.Unit})
			if err != nil {
				return nil, fmt.Errorf("metric %d: %w", i, err)
			}
			raw = b
		}
		dto.Metrics = append(dto.Metrics, raw)
	}
	return json.Marshal(dto)
}

// encodeValue sends numeric-looking values as JSON numbers and everything
// else as strings.
func encodeValue(v string) json.RawMessage {
	var n json.Number
	if err := json.Unmarshal([]byte(v), &n); err == nil {
		return json.RawMessage(n.String())
	}
	b, _ := json.Marshal(v)
	return b
}
