package multipart

import (
	"bytes"
	stdmultipart "mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_TerminatorIsNotAPart(t *testing.T) {
	body := []byte("--XYZ\r\nContent-Disposition: form-data; name=\"title\"\r\n\r\nHello\r\n--XYZ--")

	form, err := Decode(body, "XYZ")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"title": "Hello"}, form.Values)
	assert.Empty(t, form.Files)
	assert.Zero(t, form.Dropped)
}

func TestDecode_FieldsAndFiles(t *testing.T) {
	var buf bytes.Buffer
	w := stdmultipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "Мастер и Маргарита"))
	require.NoError(t, w.WriteField("price", "5"))

	fw, err := w.CreateFormFile("file", "book.epub")
	require.NoError(t, err)
	payload := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, '\r', '\n', 0xff}
	_, err = fw.Write(payload)
	require.NoError(t, err)

	fw, err = w.CreateFormFile("audiobook_a1", "chapter1.mp3")
	require.NoError(t, err)
	_, err = fw.Write([]byte("ID3"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := DecodeStrict(buf.Bytes(), w.Boundary())
	require.NoError(t, err)

	assert.Equal(t, "Мастер и Маргарита", form.Value("title"))
	assert.Equal(t, "5", form.Value("price"))

	file := form.File("file")
	require.NotNil(t, file)
	assert.Equal(t, "book.epub", file.FileName)
	assert.Equal(t, "application/octet-stream", file.ContentType)
	assert.Equal(t, payload, file.Data)

	tracks := form.FilesWithPrefix("audiobook_")
	require.Len(t, tracks, 1)
	assert.Equal(t, []byte("ID3"), tracks["a1"].Data)
}

func TestDecode_EmptyFilenameIsStillAFile(t *testing.T) {
	body := []byte("--b\r\nContent-Disposition: form-data; name=\"cover\"; filename=\"\"\r\n\r\n\r\n--b--\r\n")

	form, err := Decode(body, "b")
	require.NoError(t, err)

	require.NotNil(t, form.File("cover"))
	assert.Empty(t, form.File("cover").Data)
	assert.NotContains(t, form.Values, "cover")
}

func TestDecode_QuotedAttributes(t *testing.T) {
	body := []byte("--b\r\n" +
		"content-disposition: form-data; name=\"file\"; filename=\"a \\\"b\\\"; c.epub\"\r\n" +
		"Content-Type: application/epub+zip\r\n\r\n" +
		"DATA\r\n--b--")

	form, err := Decode(body, "b")
	require.NoError(t, err)

	f := form.File("file")
	require.NotNil(t, f)
	assert.Equal(t, `a "b"; c.epub`, f.FileName)
	assert.Equal(t, "application/epub+zip", f.ContentType)
	assert.Equal(t, []byte("DATA"), f.Data)
}

func TestDecode_PartWithoutSeparator(t *testing.T) {
	body := []byte("--b\r\nContent-Disposition: form-data; name=\"broken\"\r\n--b\r\n" +
		"Content-Disposition: form-data; name=\"ok\"\r\n\r\nyes\r\n--b--")

	form, err := Decode(body, "b")
	require.NoError(t, err)
	assert.Equal(t, "yes", form.Value("ok"))
	assert.Equal(t, 1, form.Dropped)

	_, err = DecodeStrict(body, "b")
	assert.ErrorIs(t, err, ErrTruncatedPart)
}

func TestDecode_MissingClosingBoundary(t *testing.T) {
	body := []byte("--b\r\nContent-Disposition: form-data; name=\"title\"\r\n\r\nHello\r\n--b\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"x\"\r\n\r\npartial")

	form, err := Decode(body, "b")
	require.NoError(t, err)
	assert.Equal(t, "Hello", form.Value("title"))
	assert.Nil(t, form.File("file"))
	assert.Equal(t, 1, form.Dropped)

	_, err = DecodeStrict(body, "b")
	assert.ErrorIs(t, err, ErrTruncatedPart)
}

func TestDecode_LFOnlyLineEndings(t *testing.T) {
	body := []byte("--b\nContent-Disposition: form-data; name=\"title\"\n\nHello\n--b--\n")

	form, err := Decode(body, "b")
	require.NoError(t, err)
	assert.Equal(t, "Hello", form.Value("title"))
}

func TestDecode_LFHeadersWithCRLFInBody(t *testing.T) {
	body := []byte("--b\nContent-Disposition: form-data; name=\"file\"; filename=\"a.bin\"\n" +
		"Content-Type: application/octet-stream\n\nAB\r\n\r\nCD\n--b--\n")

	form, err := DecodeStrict(body, "b")
	require.NoError(t, err)
	part := form.File("file")
	require.NotNil(t, part)
	assert.Equal(t, "application/octet-stream", part.ContentType)
	assert.Equal(t, []byte("AB\r\n\r\nCD"), part.Data)
}

func TestBoundaryFromContentType(t *testing.T) {
	cases := []struct {
		name    string
		ct      string
		want    string
		wantErr bool
	}{
		{name: "plain", ct: "multipart/form-data; boundary=XYZ", want: "XYZ"},
		{name: "quoted", ct: `multipart/form-data; boundary="a b"`, want: "a b"},
		{name: "empty header", ct: "", wantErr: true},
		{name: "no boundary", ct: "multipart/form-data", wantErr: true},
		{name: "not multipart", ct: "application/json", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BoundaryFromContentType(tc.ct)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrMissingBoundary)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecode_EmptyBoundary(t *testing.T) {
	_, err := Decode([]byte("anything"), "")
	assert.ErrorIs(t, err, ErrMissingBoundary)
}
