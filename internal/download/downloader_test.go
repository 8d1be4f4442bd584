package download

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dorogallery/internal/domain"
)

func TestArchiveName(t *testing.T) {
	ts := time.UnixMilli(1718000000123)
	assert.Equal(t, "doro-stickers-1718000000123.zip", ArchiveName(ts))
}

func TestArchive_WriteOnce(t *testing.T) {
	a := NewArchive()
	require.NoError(t, a.Add("x.png", []byte("1")))
	assert.ErrorIs(t, a.Add("x.png", []byte("2")), ErrDuplicateEntry)

	data, ok := a.Get("x.png")
	require.True(t, ok)
	assert.Equal(t, "1", string(data), "first entry wins")

	blob, err := a.Bytes()
	require.NoError(t, err)
	again, err := a.Bytes()
	require.NoError(t, err)
	assert.Equal(t, blob, again, "serialized once")
	assert.ErrorIs(t, a.Add("y.png", []byte("3")), ErrSealed)
}

func TestDownloader_Batch(t *testing.T) {
	as := newAssetServer(t)
	as.serveDirect("a.png", []byte("AAA"))
	as.serveProxy("https://cdn.example.com/b.gif", []byte("BBB"))

	dir := t.TempDir()
	d := NewDownloader(as.retriever(Options{}), NewFileSaver(dir, quietLogger()), quietLogger())
	d.now = func() time.Time { return time.UnixMilli(1000) }

	items := []domain.Sticker{
		sticker("1", "a", "https://cdn.example.com/a.png"),
		sticker("2", "b", "https://cdn.example.com/b.gif"),
		sticker("3", "c", "https://cdn.example.com/c.png"),
	}
	report, err := d.DownloadBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Requested)
	assert.Equal(t, 2, report.Archived)
	assert.Equal(t, []string{"3"}, report.Failed)
	assert.Equal(t, "doro-stickers-1000.zip", report.Name)
	assert.Equal(t, filepath.Join(dir, report.Name), report.Location)

	zr, err := zip.OpenReader(report.Location)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.png", "b.gif"}, names)

	// Same millisecond: the next archive still gets a distinct name.
	report2, err := d.DownloadBatch(context.Background(), items[:1])
	require.NoError(t, err)
	assert.Equal(t, "doro-stickers-1001.zip", report2.Name)
}

func TestDownloader_EmptySelection(t *testing.T) {
	dir := t.TempDir()
	d := NewDownloader(NewRetriever(Options{AssetBaseURL: "http://unused.test"}, quietLogger()), NewFileSaver(dir, quietLogger()), quietLogger())

	report, err := d.DownloadBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Location)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing saved for an empty selection")
}

func TestDownloader_BatchCancelled(t *testing.T) {
	as := newAssetServer(t)
	as.serveDirect("a.png", []byte("AAA"))

	dir := t.TempDir()
	d := NewDownloader(as.retriever(Options{}), NewFileSaver(dir, quietLogger()), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.DownloadBatch(ctx, []domain.Sticker{sticker("1", "a", "https://cdn.example.com/a.png")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"1"}, report.Failed)
	assert.Empty(t, report.Location)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a cancelled batch saves nothing")
}

func TestDownloader_One(t *testing.T) {
	as := newAssetServer(t)
	as.serveProxy("https://cdn.example.com/q.webp", []byte("WEBP"))

	dir := t.TempDir()
	d := NewDownloader(as.retriever(Options{}), NewFileSaver(dir, quietLogger()), quietLogger())

	loc, err := d.DownloadOne(context.Background(), sticker("1", "q", "https://cdn.example.com/q.webp"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "q.webp"), loc)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "WEBP", string(data))

	_, err = d.DownloadOne(context.Background(), sticker("2", "zz", "https://cdn.example.com/zz.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSaver_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSaver(filepath.Join(dir, "out"), quietLogger())

	loc, err := s.Save(context.Background(), "../../etc/evil.png", []byte("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, filepath.Join(dir, "out")))
	assert.Equal(t, "evil.png", filepath.Base(loc))
}
