package json

import "encoding/json"

// statusDTO is the payload of a status event. Either key is accepted.
type statusDTO struct {
	Message *string `json:"message,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// resultDTO is the payload of a result event. Charts and metrics stay raw so
// each descriptor can be validated and preserved individually.
type resultDTO struct {
	Answer     *string           `json:"answer"`
	Charts     []json.RawMessage `json:"charts"`
	Metrics    []json.RawMessage `json:"metrics"`
	Confidence *float64          `json:"confidence,omitempty"`
}

type chartDTO struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

type metricDTO struct {
	Label string          `json:"label,omitempty"`
	Name  string          `json:"name,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Unit  string          `json:"unit,omitempty"`
}

type errorDTO struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
