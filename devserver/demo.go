package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/fwojciec/pulse"
	"github.com/jonboulle/clockwork"
)

// Demo answers any query with made-up analytics after a few progress steps.
// Answers are deterministic for a given query.
type Demo struct {
	Step  time.Duration // pause before each event
	Clock clockwork.Clock
}

var demoSteps = []string{
	"Parsing query",
	"Querying warehouse",
	"Aggregating results",
	"Building charts",
}

// Answer implements [Answerer].
func (d Demo) Answer(ctx context.Context, query string, emit func(pulse.Event)) error {
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	for _, step := range demoSteps {
		if err := d.sleep(ctx, clock); err != nil {
			return err
		}
		emit(pulse.EventStatus{Message: step})
	}
	if err := d.sleep(ctx, clock); err != nil {
		return err
	}
	emit(pulse.EventResult{Result: demoResult(query)})
	return nil
}

func (d Demo) sleep(ctx context.Context, clock clockwork.Clock) error {
	if d.Step <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d.Step):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func demoResult(query string) pulse.Result {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(query)))
	seed := h.Sum32()

	change := int(seed%25) + 1
	rate := float64(seed%500)/100 + 1
	sessions := 10000 + int(seed%90000)
	subject := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(query), "show "))

	chart, _ := json.Marshal(map[string]any{
		"type":  "line",
		"title": "Weekly trend",
		"data":  []int{sessions / 7, sessions / 6, sessions / 5, sessions / 4},
	})
	return pulse.Result{
		Answer: fmt.Sprintf("**%s** rose %d%% week over week.\n\n"+
			"- Conversion rate is %.2f%%\n- %d sessions in the period",
			capitalize(subject), change, rate, sessions),
		Charts: []pulse.Chart{{Type: "line", Title: "Weekly trend", Raw: chart}},
		Metrics: []pulse.Metric{
			{Label: "Change", Value: fmt.Sprintf("+%d", change), Unit: "%"},
			{Label: "Conversion rate", Value: fmt.Sprintf("%.2f", rate), Unit: "%"},
			{Label: "Sessions", Value: fmt.Sprintf("%d", sessions)},
		},
		Confidence: 0.5 + float64(seed%50)/100,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
