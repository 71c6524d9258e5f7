package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRendererRender(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	info := StatusInfo{Status: "ok", DataDir: "/data", QueryCount: 5, P50Ms: 1.2, P95Ms: 3.4}
	require.NoError(t, r.Render(info))

	out := buf.String()
	assert.Contains(t, out, "memorized status")
	assert.Contains(t, out, "/data")
	assert.Contains(t, out, "ok")
}

func TestStatusRendererRenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.RenderJSON(StatusInfo{Status: "degraded"}))

	var decoded StatusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "degraded", decoded.Status)
}
