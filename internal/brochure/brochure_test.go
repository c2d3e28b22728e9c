package brochure

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func passageTexts(d *Document) []string {
	out := make([]string, 0, d.Len())
	for _, p := range d.Passages {
		out = append(out, p.Text)
	}
	return out
}

func TestParse_SplitsOnBlankLines(t *testing.T) {
	doc := Parse("Fees must be paid by March 1st.\n\nHostel allotment begins in April.")

	require.Equal(t, 2, doc.Len())
	assert.Equal(t, []string{
		"Fees must be paid by March 1st.",
		"Hostel allotment begins in April.",
	}, passageTexts(doc))
	assert.Equal(t, 0, doc.Passages[0].Index)
	assert.Equal(t, 1, doc.Passages[1].Index)
	assert.Equal(t, "fees must be paid by march 1st.", doc.Passages[0].Lower())
}

func TestParse_KeepsMultiLineParagraphs(t *testing.T) {
	doc := Parse("Line one\nline two\n\n\n\n  Next  \r\n\r\nLast")

	assert.Equal(t, []string{"Line one\nline two", "Next", "Last"}, passageTexts(doc))
}

func TestParse_Empty(t *testing.T) {
	for _, in := range []string{"", "\n\n", "   \n\n\t"} {
		assert.True(t, Parse(in).Empty(), "Parse(%q) should be empty", in)
	}
}

func TestDocument_NilIsEmpty(t *testing.T) {
	var d *Document
	assert.True(t, d.Empty())
	assert.Equal(t, 0, d.Len())
}

func TestPassage_LowerWithoutCache(t *testing.T) {
	p := Passage{Text: "LMS Setup"}
	assert.Equal(t, "lms setup", p.Lower())
}

func TestParseMarkdown_SectionsAndBlocks(t *testing.T) {
	src := []byte(`# Fees

Fees must be paid by March 1st.

- Pay online
- Keep the receipt

## Hostel

Hostel allotment begins in April.
`)
	doc := ParseMarkdown(src)

	require.Equal(t, 3, doc.Len())
	assert.Equal(t, "Fees must be paid by March 1st.", doc.Passages[0].Text)
	assert.Equal(t, "Fees", doc.Passages[0].Section)
	assert.Equal(t, "Pay online\nKeep the receipt", doc.Passages[1].Text)
	assert.Equal(t, "Fees", doc.Passages[1].Section)
	assert.Equal(t, "Hostel allotment begins in April.", doc.Passages[2].Text)
	assert.Equal(t, "Hostel", doc.Passages[2].Section)
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "brochure.txt")
	require.NoError(t, os.WriteFile(txt, []byte("A\n\nB"), 0o644))
	doc, err := Load(txt)
	require.NoError(t, err)
	assert.Equal(t, txt, doc.Source)
	assert.Equal(t, 2, doc.Len())

	md := filepath.Join(dir, "brochure.md")
	require.NoError(t, os.WriteFile(md, []byte("# Title\n\nBody text.\n"), 0o644))
	doc, err = Load(md)
	require.NoError(t, err)
	require.Equal(t, 1, doc.Len())
	assert.Equal(t, "Title", doc.Passages[0].Section)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestLoad_BadPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestStore_MissingFileIsSoft(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.txt"), nil)

	doc := s.Document()
	require.NotNil(t, doc)
	assert.True(t, doc.Empty())
}

func TestStore_CachesUntilInvalidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brochure.txt")
	require.NoError(t, os.WriteFile(path, []byte("First version."), 0o644))

	s := NewStore(path, nil)
	first := s.Document()
	require.Equal(t, []string{"First version."}, passageTexts(first))

	require.NoError(t, os.WriteFile(path, []byte("Second version.\n\nExtra."), 0o644))
	assert.Same(t, first, s.Document(), "document should stay cached")

	s.Invalidate()
	assert.Equal(t, []string{"Second version.", "Extra."}, passageTexts(s.Document()))
}

func TestWatch_InvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brochure.txt")
	require.NoError(t, os.WriteFile(path, []byte("Old text."), 0o644))

	s := NewStore(path, nil)
	require.Equal(t, []string{"Old text."}, passageTexts(s.Document()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, s) }()

	// Writes may race the watcher registration, so keep rewriting until
	// the reload is observed.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("New text."), 0o644)
		docs := passageTexts(s.Document())
		return len(docs) == 1 && docs[0] == "New text."
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "no-such-dir", "brochure.txt"), nil)

	err := Watch(context.Background(), s)
	assert.Error(t, err)
}
