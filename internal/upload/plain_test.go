package upload

import (
	"bytes"
	"encoding/base64"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSaver(t *testing.T, maxSize int64) *Saver {
	t.Helper()
	saver, err := NewSaver(t.TempDir(), maxSize)
	require.NoError(t, err)
	return saver
}

func TestSaverRaw(t *testing.T) {
	saver := newTestSaver(t, 1024)

	stored, err := saver.SaveRaw("notes.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), stored.Size)
	assert.True(t, strings.HasSuffix(stored.Name, "_notes.txt"))
}

func TestSaverRawTooLarge(t *testing.T) {
	saver := newTestSaver(t, 10)

	_, err := saver.SaveRaw("big.bin", strings.NewReader(strings.Repeat("x", 11)))
	assert.ErrorIs(t, err, ErrTooLarge)

	// Nothing is kept for a rejected upload.
	files, err := saver.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSaverBase64(t *testing.T) {
	saver := newTestSaver(t, 1024)
	encoded := base64.StdEncoding.EncodeToString([]byte("payload"))

	stored, err := saver.SaveBase64("doc.pdf", encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.Size)

	// Data URI prefixes are stripped before decoding.
	stored, err = saver.SaveBase64("pic.png", "data:image/png;base64,"+encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.Size)

	_, err = saver.SaveBase64("bad.bin", "!!not base64!!")
	assert.ErrorIs(t, err, ErrBadEncoding)
}

func TestSaverMultipart(t *testing.T) {
	saver := newTestSaver(t, 1024)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "form.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("form content"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(&buf, writer.Boundary())
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)
	defer form.RemoveAll()

	headers := form.File["file"]
	require.Len(t, headers, 1)

	stored, err := saver.SaveMultipart(headers[0])
	require.NoError(t, err)
	assert.Equal(t, int64(len("form content")), stored.Size)
	assert.True(t, strings.HasSuffix(stored.Name, "_form.txt"))
}

func TestSaverSanitizesNames(t *testing.T) {
	saver := newTestSaver(t, 1024)

	stored, err := saver.SaveRaw("../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotContains(t, stored.Name, "/")
	assert.NotContains(t, stored.Name, "..")

	stored, err = saver.SaveRaw("????", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.Name, "_upload.bin"))
}

func TestSaverList(t *testing.T) {
	saver := newTestSaver(t, 1024)

	_, err := saver.SaveRaw("a.txt", strings.NewReader("aa"))
	require.NoError(t, err)
	_, err = saver.SaveRaw("b.txt", strings.NewReader("bbb"))
	require.NoError(t, err)

	files, err := saver.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
}
