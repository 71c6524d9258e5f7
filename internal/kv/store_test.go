package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRemove(t *testing.T) {
	s := openTestStore(t)
	tree := s.Tree("docs")

	v, err := tree.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, tree.Put([]byte("k1"), []byte("v1")))
	v, err = tree.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	require.NoError(t, tree.Remove([]byte("k1")))
	v, err = tree.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestNamespacesDoNotLeak(t *testing.T) {
	s := openTestStore(t)
	a := s.Tree("a")
	b := s.Tree("b")

	require.NoError(t, a.Put([]byte("x"), []byte("a-value")))
	require.NoError(t, b.Put([]byte("x"), []byte("b-value")))

	av, err := a.Get([]byte("x"))
	require.NoError(t, err)
	bv, err := b.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "a-value", string(av))
	assert.Equal(t, "b-value", string(bv))

	entries, err := a.Iterate()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestScanPrefixOrderingAndStrip(t *testing.T) {
	s := openTestStore(t)
	tree := s.Tree("chunks")

	require.NoError(t, tree.Put([]byte("doc1:0"), []byte("a")))
	require.NoError(t, tree.Put([]byte("doc1:1000"), []byte("b")))
	require.NoError(t, tree.Put([]byte("doc2:0"), []byte("c")))

	entries, err := tree.ScanPrefix([]byte("doc1:"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "doc1:0", string(entries[0].Key))
	assert.Equal(t, "doc1:1000", string(entries[1].Key))
}

func TestRemovePrefix(t *testing.T) {
	s := openTestStore(t)
	tree := s.Tree("doc_refs")
	require.NoError(t, tree.Put([]byte("mem::m1::doc::d1::chunk::c1"), []byte("{}")))
	require.NoError(t, tree.Put([]byte("mem::m1::doc::d2::chunk::c2"), []byte("{}")))
	require.NoError(t, tree.Put([]byte("mem::m2::doc::d1::chunk::c1"), []byte("{}")))

	n, err := tree.RemovePrefix([]byte("mem::m1::"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := tree.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHasPrefix(t *testing.T) {
	s := openTestStore(t)
	tree := s.Tree("chunks")
	ok, err := tree.HasPrefix([]byte("doc1:"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tree.Put([]byte("doc1:0"), []byte("a")))
	ok, err = tree.HasPrefix([]byte("doc1:"))
	require.NoError(t, err)
	assert.True(t, ok)
}
