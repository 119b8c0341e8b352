package download

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSaver_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := &FileSaver{Dir: dir}

	require.NoError(t, s.Save("../credencial.pdf", "application/pdf", []byte("%PDF")))

	assert.Equal(t, filepath.Join(dir, "credencial.pdf"), s.Saved)
	data, err := os.ReadFile(s.Saved)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestFileSaver_ReadableMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	s := &FileSaver{Dir: t.TempDir()}
	require.NoError(t, s.Save("participantes.csv", "text/csv", []byte("id\n")))

	info, err := os.Stat(s.Saved)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFileSaver_BadName(t *testing.T) {
	s := &FileSaver{Dir: t.TempDir()}
	assert.ErrorIs(t, s.Save("..", "", nil), ErrBadName)
}

func TestAttachmentSaver_Save(t *testing.T) {
	w := httptest.NewRecorder()
	s := &AttachmentSaver{W: w}

	require.NoError(t, s.Save("credencial.pdf", "application/pdf", []byte("%PDF")))
	assert.True(t, s.Used())
	assert.Equal(t, `attachment; filename="credencial.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF", w.Body.String())

	assert.Error(t, s.Save("again.pdf", "application/pdf", nil))
}
