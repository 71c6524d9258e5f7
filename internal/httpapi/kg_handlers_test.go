package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorized/internal/kg"
)

func TestHandleKGEntityLifecycle(t *testing.T) {
	s := newTestServer(t)

	createRec := doJSON(t, s, http.MethodPost, "/kg/entity", kgCreateEntityRequest{Name: "Apple", Tags: []string{"fruit"}})
	require.Equal(t, http.StatusOK, createRec.Code)
	var node kg.Node
	decodeBody(t, createRec, &node)
	assert.Equal(t, "Apple", node.Label)

	getRec := doJSON(t, s, http.MethodGet, "/kg/node?type=Entity&name=Apple", nil)
	require.Equal(t, http.StatusOK, getRec.Code)

	missingRec := doJSON(t, s, http.MethodGet, "/kg/node?type=Entity&name=Nope", nil)
	assert.Equal(t, http.StatusNotFound, missingRec.Code)

	searchRec := doJSON(t, s, http.MethodGet, "/kg/search?q=App", nil)
	require.Equal(t, http.StatusOK, searchRec.Code)

	deleteRec := doJSON(t, s, http.MethodPost, "/kg/delete", kgDeleteRequest{Name: "Apple"})
	require.Equal(t, http.StatusOK, deleteRec.Code)
}

func TestHandleKGRelationAndGraph(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/kg/entity", kgCreateEntityRequest{Name: "Apple"})
	doJSON(t, s, http.MethodPost, "/kg/entity", kgCreateEntityRequest{Name: "Banana"})

	relRec := doJSON(t, s, http.MethodPost, "/kg/relation", kgCreateRelationRequest{
		Src:      kg.EntityNodeKey("Apple"),
		Dst:      kg.EntityNodeKey("Banana"),
		Relation: "RELATED",
	})
	require.Equal(t, http.StatusOK, relRec.Code)

	graphRec := doJSON(t, s, http.MethodGet, "/kg/graph", nil)
	require.Equal(t, http.StatusOK, graphRec.Code)
	var body struct {
		Nodes []kg.Node `json:"nodes"`
		Edges []kg.Edge `json:"edges"`
	}
	decodeBody(t, graphRec, &body)
	assert.Len(t, body.Nodes, 2)
	require.Len(t, body.Edges, 1)
	assert.Equal(t, "RELATED", body.Edges[0].Relation)
}

func TestHandleKGCreateEntityRequiresName(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/kg/entity", kgCreateEntityRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
