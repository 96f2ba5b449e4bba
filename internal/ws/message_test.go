package ws

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confluence-stream/backend/internal/model"
)

func TestDecodeInbound(t *testing.T) {
	testCases := []struct {
		name            string
		frame           string
		wantType        MessageType
		wantUserID      string
		wantConfluences []string
	}{
		{name: "ping", frame: `{"type":"ping"}`, wantType: MessageTypePing},
		{
			name:            "init with everything",
			frame:           `{"type":"init","userId":"u1","confluences":[{"name":"r1"},{"name":"r2","period":14}]}`,
			wantType:        MessageTypeInit,
			wantUserID:      "u1",
			wantConfluences: []string{"r1", "r2"},
		},
		{name: "init without fields", frame: `{"type":"init"}`, wantType: MessageTypeInit, wantConfluences: []string{}},
		{name: "init with nulls", frame: `{"type":"init","userId":null,"confluences":null}`, wantType: MessageTypeInit, wantConfluences: []string{}},
		{
			name:            "update confluences",
			frame:           `{"type":"update_confluences","confluences":[{"name":"x"}]}`,
			wantType:        MessageTypeUpdateConfluences,
			wantConfluences: []string{"x"},
		},
		{name: "chart update keeps payload", frame: `{"type":"chart_update","candles":[1,2,3]}`, wantType: MessageTypeChartUpdate},
		{name: "unknown type", frame: `{"type":"subscribe"}`, wantType: MessageType("subscribe")},
		{name: "surrounding whitespace", frame: "  {\"type\":\"ping\"}\n", wantType: MessageTypePing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tc.frame))
			require.NoError(t, err)

			assert.Equal(t, tc.wantType, msg.Type)
			assert.Equal(t, tc.wantUserID, msg.UserID)
			assert.JSONEq(t, tc.frame, string(msg.Raw))

			if tc.wantConfluences == nil {
				assert.Nil(t, msg.Confluences)
				return
			}
			names := make([]string, 0, len(msg.Confluences))
			for _, c := range msg.Confluences {
				names = append(names, c.Name)
			}
			assert.Equal(t, tc.wantConfluences, names)
		})
	}
}

func TestDecodeInbound_PreservesConfluenceParams(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"init","confluences":[{"name":"ema","period":21,"source":"close"}]}`))
	require.NoError(t, err)
	require.Len(t, msg.Confluences, 1)

	var period int
	ok, err := msg.Confluences[0].Param("period", &period)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 21, period)
	assert.JSONEq(t, `"close"`, string(msg.Confluences[0].Params["source"]))
}

func TestDecodeInbound_Malformed(t *testing.T) {
	frames := map[string]string{
		"not json":              `{"type":`,
		"empty":                 ``,
		"array":                 `[{"type":"ping"}]`,
		"string":                `"ping"`,
		"null":                  `null`,
		"missing type":          `{"userId":"u1"}`,
		"null type":             `{"type":null}`,
		"numeric type":          `{"type":7}`,
		"numeric user id":       `{"type":"init","userId":42}`,
		"confluences object":    `{"type":"init","confluences":{"name":"r1"}}`,
		"confluence not object": `{"type":"update_confluences","confluences":["r1"]}`,
		"null confluence":       `{"type":"init","confluences":[null]}`,
		"numeric name":          `{"type":"init","confluences":[{"name":5}]}`,
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrMalformedMessage), "expected ErrMalformedMessage, got %v", err)
		})
	}
}

func TestOutboundFrames(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	data, err := json.Marshal(NewConnected("abc", now))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connected","sessionId":"abc","timestamp":1700000000123}`, string(data))

	data, err = json.Marshal(NewPong(now))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","timestamp":1700000000123}`, string(data))

	data, err = json.Marshal(NewInitAck(now))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"init_ack","timestamp":1700000000123}`, string(data))

	data, err = json.Marshal(NewError("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"boom"}`, string(data))
}

func TestNewAnalysisResult_FlattensResult(t *testing.T) {
	received := time.UnixMilli(1000)
	processed := time.UnixMilli(1003)
	result := &model.AnalysisResult{
		Alert:    true,
		Severity: model.SeverityHigh,
		Message:  "All criteria met",
		RulesStatus: []model.RuleStatus{
			{RuleName: "r1", Met: true, Confidence: 0.85},
		},
		DetectedElements: map[string]any{"trend": "uptrend"},
	}

	data, err := json.Marshal(NewAnalysisResult(result, received, processed, 2500*time.Microsecond))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"type": "analysis_result",
		"alert": true,
		"severity": "high",
		"message": "All criteria met",
		"rulesStatus": [{"ruleName": "r1", "met": true, "confidence": 0.85}],
		"detectedElements": {"trend": "uptrend"},
		"latency": {"received": 1000, "processed": 1003, "processingTime": 2.5}
	}`, string(data))
}

func TestNewAnalysisResult_NormalizesEmptyCollections(t *testing.T) {
	data, err := json.Marshal(NewAnalysisResult(&model.AnalysisResult{Severity: model.SeverityInfo}, time.UnixMilli(0), time.UnixMilli(0), 0))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []any{}, decoded["rulesStatus"])
	assert.Equal(t, map[string]any{}, decoded["detectedElements"])
}
