package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func citationStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	require.NoError(t, store.Record("serial", "FW-1234-AB", "extractor", "read string field at 0x100"))
	require.NoError(t, store.Record("image-size", 16384, "extractor", "read string field at 0x100"))
	require.NoError(t, store.Record("tree-hash", "ab12cd", "decoder", "content hash of decoded tree"))
	return store
}

func TestRenderSubstitutesAndCites(t *testing.T) {
	body, footnotes, err := Render("Serial {{cite serial}} decoded to {{cite tree-hash}}.", citationStore(t))
	require.NoError(t, err)

	assert.Equal(t, "Serial FW-1234-AB[1] decoded to ab12cd[2].", body)
	require.Len(t, footnotes, 2)
	assert.Equal(t, "[1] extractor: read string field at 0x100", footnotes[0].String())
	assert.Equal(t, "[2] decoder: content hash of decoded tree", footnotes[1].String())
}

// Two findings sharing a (source, method) pair reuse one footnote number;
// dedup is keyed by the pair, not by the key or occurrence order.
func TestRenderDeduplicatesByPair(t *testing.T) {
	body, footnotes, err := Render("{{cite serial}} / {{cite image-size}} / {{cite serial}}", citationStore(t))
	require.NoError(t, err)

	assert.Equal(t, "FW-1234-AB[1] / 16384[1] / FW-1234-AB[1]", body)
	require.Len(t, footnotes, 1)
	assert.Equal(t, 1, footnotes[0].Number)
}

func TestRenderFootnotesFirstCitationOrder(t *testing.T) {
	_, footnotes, err := Render("{{cite tree-hash}} then {{cite serial}}", citationStore(t))
	require.NoError(t, err)

	require.Len(t, footnotes, 2)
	assert.Equal(t, "decoder", footnotes[0].Source)
	assert.Equal(t, "extractor", footnotes[1].Source)
}

func TestRenderUnknownKey(t *testing.T) {
	_, _, err := Render("{{cite absent}}", citationStore(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown finding "absent"`)
}

func TestRenderUnterminatedDirective(t *testing.T) {
	_, _, err := Render("broken {{cite serial", citationStore(t))
	assert.Error(t, err)
}

func TestRenderPlainTemplate(t *testing.T) {
	body, footnotes, err := Render("no citations here", citationStore(t))
	require.NoError(t, err)
	assert.Equal(t, "no citations here", body)
	assert.Empty(t, footnotes)
}

func TestRenderDeterministic(t *testing.T) {
	template := "{{cite serial}} {{cite image-size}} {{cite tree-hash}}"
	store := citationStore(t)

	firstBody, firstNotes, err := Render(template, store)
	require.NoError(t, err)
	secondBody, secondNotes, err := Render(template, store)
	require.NoError(t, err)

	assert.Equal(t, firstBody, secondBody)
	assert.Equal(t, firstNotes, secondNotes)
}
