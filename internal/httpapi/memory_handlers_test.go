package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorized/internal/memory"
)

func TestHandleMemoryAddAndSearch(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/memory/add", memory.AddRequest{Content: "Apple met Banana"})
	require.Equal(t, http.StatusOK, rec.Code)
	var added memory.Record
	decodeBody(t, rec, &added)
	require.NotEmpty(t, added.ID)

	searchRec := doJSON(t, s, http.MethodGet, "/memory/search?q=apple", nil)
	require.Equal(t, http.StatusOK, searchRec.Code)
	var body struct {
		Results []memory.SearchResult `json:"results"`
	}
	decodeBody(t, searchRec, &body)
	require.Len(t, body.Results, 1)
	assert.Equal(t, added.ID, body.Results[0].ID)
	assert.Equal(t, 1.0, body.Results[0].Score)
}

func TestHandleMemoryAddRejectsEmptyContent(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/memory/add", memory.AddRequest{Content: "   "})
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHandleMemoryUpdateRequiresID(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/memory/update", memoryUpdateRequest{Content: strPtr("x")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMemoryDeleteRoundTrip(t *testing.T) {
	s := newTestServer(t)
	addRec := doJSON(t, s, http.MethodPost, "/memory/add", memory.AddRequest{Content: "Apple"})
	var added memory.Record
	decodeBody(t, addRec, &added)

	delRec := doJSON(t, s, http.MethodPost, "/memory/delete", memoryDeleteRequest{ID: added.ID})
	require.Equal(t, http.StatusOK, delRec.Code)
	var body map[string]bool
	decodeBody(t, delRec, &body)
	assert.True(t, body["deleted"])
}

func strPtr(v string) *string { return &v }
