package json_test

import (
	"testing"

	"github.com/fwojciec/pulse"
	pulsejson "github.com/fwojciec/pulse/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_Status(t *testing.T) {
	t.Parallel()

	t.Run("message key", func(t *testing.T) {
		t.Parallel()
		evt, err := pulsejson.DecodeEvent("status", []byte(`{"message":"Thinking..."}`))
		require.NoError(t, err)
		assert.Equal(t, pulse.EventStatus{Message: "Thinking..."}, evt)
	})

	t.Run("status key", func(t *testing.T) {
		t.Parallel()
		evt, err := pulsejson.DecodeEvent("status", []byte(`{"status":"Querying warehouse"}`))
		require.NoError(t, err)
		assert.Equal(t, pulse.EventStatus{Message: "Querying warehouse"}, evt)
	})

	t.Run("message preferred over status", func(t *testing.T) {
		t.Parallel()
		evt, err := pulsejson.DecodeEvent("status", []byte(`{"status":"old","message":"new"}`))
		require.NoError(t, err)
		assert.Equal(t, pulse.EventStatus{Message: "new"}, evt)
	})

	t.Run("missing both keys", func(t *testing.T) {
		t.Parallel()
		_, err := pulsejson.DecodeEvent("status", []byte(`{"progress":0.5}`))
		assert.ErrorIs(t, err, pulse.ErrDecode)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		_, err := pulsejson.DecodeEvent("status", []byte(`{"message":`))
		require.Error(t, err)
		var de *pulse.DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "status", de.Event)
		assert.Equal(t, `{"message":`, de.Data)
	})
}

func TestDecodeEvent_Result(t *testing.T) {
	t.Parallel()

	t.Run("full payload", func(t *testing.T) {
		t.Parallel()
		data := `{"answer":"Mobile conversions rose 12%","charts":[{"type":"line","title":"Conversions","series":[1,2]}],` +
			`"metrics":[{"label":"Conversion rate","value":3.4,"unit":"%"},{"name":"Delta","value":"+12%"}],"confidence":0.9,"sql":"select 1"}`
		evt, err := pulsejson.DecodeEvent("result", []byte(data))
		require.NoError(t, err)
		res, ok := evt.(pulse.EventResult)
		require.True(t, ok)
		assert.Equal(t, "Mobile conversions rose 12%", res.Result.Answer)
		assert.Equal(t, 0.9, res.Result.Confidence)
		require.Len(t, res.Result.Charts, 1)
		assert.Equal(t, "line", res.Result.Charts[0].Type)
		assert.Equal(t, "Conversions", res.Result.Charts[0].Title)
		assert.JSONEq(t, `{"type":"line","title":"Conversions","series":[1,2]}`, string(res.Result.Charts[0].Raw))
		require.Len(t, res.Result.Metrics, 2)
		assert.Equal(t, pulse.Metric{Label: "Conversion rate", Value: "3.4", Unit: "%", Raw: res.Result.Metrics[0].Raw}, res.Result.Metrics[0])
		assert.Equal(t, "Delta", res.Result.Metrics[1].Label)
		assert.Equal(t, "+12%", res.Result.Metrics[1].Value)
		assert.JSONEq(t, data, string(res.Result.Raw))
	})

	t.Run("empty lists are non-nil", func(t *testing.T) {
		t.Parallel()
		evt, err := pulsejson.DecodeEvent("result", []byte(`{"answer":"ok"}`))
		require.NoError(t, err)
		res := evt.(pulse.EventResult).Result
		assert.NotNil(t, res.Charts)
		assert.NotNil(t, res.Metrics)
		assert.Zero(t, res.Confidence)
	})

	t.Run("missing answer", func(t *testing.T) {
		t.Parallel()
		_, err := pulsejson.DecodeEvent("result", []byte(`{"charts":[]}`))
		assert.ErrorIs(t, err, pulse.ErrDecode)
	})

	t.Run("chart that is not an object", func(t *testing.T) {
		t.Parallel()
		_, err := pulsejson.DecodeEvent("result", []byte(`{"answer":"x","charts":[42]}`))
		assert.ErrorIs(t, err, pulse.ErrDecode)
		assert.Contains(t, err.Error(), "chart 0")
	})
}

func TestDecodeEvent_Unknown(t *testing.T) {
	t.Parallel()
	evt, err := pulsejson.DecodeEvent("heartbeat", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, pulse.EventUnknown{Name: "heartbeat", Data: "{}"}, evt)
}

func TestDecodeErrorMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "warehouse timeout", pulsejson.DecodeErrorMessage([]byte(`{"message":"warehouse timeout"}`)))
	assert.Equal(t, "boom", pulsejson.DecodeErrorMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "plain text", pulsejson.DecodeErrorMessage([]byte(" plain text \n")))
}

func TestEncodeResult(t *testing.T) {
	t.Parallel()

	t.Run("decodes back to the same answer", func(t *testing.T) {
		t.Parallel()
		data, err := pulsejson.EncodeResult(pulse.Result{
			Answer:     "Sessions up 4%",
			Charts:     []pulse.Chart{{Type: "bar", Title: "Sessions"}},
			Metrics:    []pulse.Metric{{Label: "Sessions", Value: "1200"}, {Label: "Change", Value: "+4%"}},
			Confidence: 0.75,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"answer":"Sessions up 4%","charts":[{"type":"bar","title":"Sessions"}],`+
			`"metrics":[{"label":"Sessions","value":1200},{"label":"Change","value":"+4%"}],"confidence":0.75}`, string(data))
	})

	t.Run("nil lists encode as empty arrays", func(t *testing.T) {
		t.Parallel()
		data, err := pulsejson.EncodeResult(pulse.Result{Answer: "x"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"answer":"x","charts":[],"metrics":[],"confidence":0}`, string(data))
	})
}

func TestEncodeStatus(t *testing.T) {
	t.Parallel()
	data, err := pulsejson.EncodeStatus("Thinking...")
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Thinking..."}`, string(data))
}
