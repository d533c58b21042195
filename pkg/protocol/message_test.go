package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	data, err := EncodeFrame("QUJD", []string{"cristalline", "eau_vive"})
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"type":"frame","frame":"QUJD","classes_no_blur":["cristalline","eau_vive"]}`,
		string(data))
}

func TestEncodeFrame_NilNamesIsEmptyArray(t *testing.T) {
	data, err := EncodeFrame("QUJD", nil)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []any{}, got["classes_no_blur"])
}

func TestParse_KnownShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want InboundMessage
	}{
		{"pong", `{"type":"pong"}`, InboundMessage{Kind: KindPong}},
		{"ping", `{"type":"ping"}`, InboundMessage{Kind: KindPing}},
		{"frame", `{"frame":"QUJD"}`, InboundMessage{Kind: KindFrame, Frame: "QUJD"}},
		{"typed frame", `{"type":"frame","frame":"QUJD"}`, InboundMessage{Kind: KindFrame, Frame: "QUJD"}},
		{"error", `{"error":"capacity exceeded"}`, InboundMessage{Kind: KindError, Detail: "capacity exceeded"}},
		{"extra fields ignored", `{"frame":"QUJD","seq":4}`, InboundMessage{Kind: KindFrame, Frame: "QUJD"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unrecognized(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"array", `[1,2]`},
		{"empty object", `{}`},
		{"unknown type", `{"type":"status"}`},
		{"empty frame", `{"frame":""}`},
		{"empty error", `{"error":""}`},
		{"frame and error", `{"frame":"QUJD","error":"boom"}`},
		{"mismatched type", `{"type":"pong","frame":"QUJD"}`},
		{"frame not a string", `{"frame":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrUnrecognized)
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "frame", KindFrame.String())
	assert.Equal(t, "pong", KindPong.String())
	assert.Equal(t, "ping", KindPing.String())
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestPong(t *testing.T) {
	msg, err := Parse(Pong())
	require.NoError(t, err)
	assert.Equal(t, KindPong, msg.Kind)
}
