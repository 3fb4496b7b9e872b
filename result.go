package pulse

import "encoding/json"

// Result is the structured answer to a query. The schema is open: fields the
// client does not model are preserved in Raw.
type Result struct {
	Answer     string
	Charts     []Chart
	Metrics    []Metric
	Confidence float64
	Raw        json.RawMessage
}

// Chart describes a chart the server suggests rendering. Rendering is left to
// the UI; Raw keeps the full descriptor.
type Chart struct {
	Type  string
	Title string
	Raw   json.RawMessage
}

// Metric is a single headline number. Value holds the server's value in
// display form: strings verbatim, numbers as written in the JSON.
type Metric struct {
	Label string
	Value string
	Unit  string
	Raw   json.RawMessage
}
