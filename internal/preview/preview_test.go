package preview

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookvault/internal/domain/content"
)

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%s" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func buildOPF(items int) string {
	var manifest, spine strings.Builder
	for i := 1; i <= items; i++ {
		fmt.Fprintf(&manifest, `    <item id="ch%d" href="ch%d.xhtml" media-type="application/xhtml+xml"/>`+"\n", i, i)
		fmt.Fprintf(&spine, `    <itemref idref="ch%d"/>`+"\n", i)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata/>
  <manifest>
` + manifest.String() + `  </manifest>
  <spine toc="ncx">
` + spine.String() + `  </spine>
</package>`
}

func buildEPUB(t *testing.T, opfPath string, withContainer bool, items int) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, _ = w.Write([]byte("application/epub+zip"))

	if withContainer {
		w, err = zw.Create("META-INF/container.xml")
		require.NoError(t, err)
		_, _ = fmt.Fprintf(w, testContainer, opfPath)
	}

	w, err = zw.Create(opfPath)
	require.NoError(t, err)
	_, _ = w.Write([]byte(buildOPF(items)))

	for i := 1; i <= items; i++ {
		w, err = zw.Create(fmt.Sprintf("OEBPS/ch%d.xhtml", i))
		require.NoError(t, err)
		_, _ = fmt.Fprintf(w, "<html><body>chapter %d</body></html>", i)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readOPF(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(b)
		}
	}
	t.Fatalf("%s not in archive", name)
	return ""
}

var itemrefRE = regexp.MustCompile(`<itemref idref="(ch\d+)"/>`)

func TestOf_BookKeepsFirstFiveSpineItems(t *testing.T) {
	e := New(2, nil)
	src := buildEPUB(t, "OEBPS/book.opf", true, 8)

	out, reduced := e.Of(context.Background(), content.KindBook, src)
	require.True(t, reduced)
	require.NotEqual(t, src, out)

	opf := readOPF(t, out, "OEBPS/book.opf")
	refs := itemrefRE.FindAllStringSubmatch(opf, -1)
	require.Len(t, refs, 5)
	for i, m := range refs {
		assert.Equal(t, fmt.Sprintf("ch%d", i+1), m[1])
	}
	assert.Contains(t, opf, `id="ch5"`)
	for i := 6; i <= 8; i++ {
		assert.NotContains(t, opf, fmt.Sprintf(`id="ch%d"`, i))
	}

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	assert.Equal(t, "mimetype", zr.File[0].Name)
	assert.Equal(t, zip.Store, zr.File[0].Method)
	assert.Len(t, zr.File, 1+1+1+5)

	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for i := 1; i <= 8; i++ {
		assert.Equal(t, i <= 5, names[fmt.Sprintf("OEBPS/ch%d.xhtml", i)], "chapter %d", i)
	}
}

func TestOf_BookKeepsSharedAndNonSpineResources(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, _ = w.Write([]byte("application/epub+zip"))

	var manifest, spine strings.Builder
	manifest.WriteString(`<item id="css" href="style.css" media-type="text/css"/>`)
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&manifest, `<item id="ch%d" href="text/ch%d.xhtml" media-type="application/xhtml+xml"/>`, i, i)
		fmt.Fprintf(&spine, `<itemref idref="ch%d"/>`, i)
	}
	// the sixth spine entry reuses the first chapter document
	fmt.Fprintf(&manifest, `<item id="again" href="text/ch1.xhtml#part2" media-type="application/xhtml+xml"/>`)
	spine.WriteString(`<itemref idref="again"/>`)

	w, err = zw.Create("OEBPS/content.opf")
	require.NoError(t, err)
	fmt.Fprintf(w, `<package><manifest>%s</manifest><spine>%s</spine></package>`, manifest.String(), spine.String())
	for _, name := range []string{"OEBPS/style.css", "OEBPS/text/ch1.xhtml", "OEBPS/text/ch6.xhtml", "OEBPS/text/ch7.xhtml"} {
		w, err = zw.Create(name)
		require.NoError(t, err)
		_, _ = w.Write([]byte(name))
	}
	require.NoError(t, zw.Close())

	out, reduced := New(1, nil).Of(context.Background(), content.KindBook, buf.Bytes())
	require.True(t, reduced)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["OEBPS/style.css"])
	assert.True(t, names["OEBPS/text/ch1.xhtml"])
	assert.False(t, names["OEBPS/text/ch6.xhtml"])
	assert.False(t, names["OEBPS/text/ch7.xhtml"])

	opf := readOPF(t, out, "OEBPS/content.opf")
	assert.Contains(t, opf, `id="css"`)
	assert.NotContains(t, opf, `id="again"`)
}

func TestOf_BookFallsBackToDefaultPackagePath(t *testing.T) {
	e := New(1, nil)
	src := buildEPUB(t, "OEBPS/content.opf", false, 7)

	out, reduced := e.Of(context.Background(), content.KindBook, src)
	assert.True(t, reduced)
	opf := readOPF(t, out, "OEBPS/content.opf")
	assert.Len(t, itemrefRE.FindAllString(opf, -1), 5)
}

func TestOf_ShortBookUnchangedSpine(t *testing.T) {
	e := New(1, nil)
	src := buildEPUB(t, "OEBPS/content.opf", true, 3)

	out, reduced := e.Of(context.Background(), content.KindBook, src)
	assert.False(t, reduced)
	assert.Equal(t, src, out)
	opf := readOPF(t, out, "OEBPS/content.opf")
	assert.Len(t, itemrefRE.FindAllString(opf, -1), 3)
}

func TestOf_GarbageBookReturnedUnchanged(t *testing.T) {
	e := New(1, nil)
	garbage := []byte("this is not a zip archive at all")

	out, reduced := e.Of(context.Background(), content.KindBook, garbage)
	assert.Equal(t, garbage, out)
	assert.False(t, reduced)

	// a zip without any package document
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("readme.txt")
	_, _ = w.Write([]byte("hi"))
	require.NoError(t, zw.Close())
	out, reduced = e.Of(context.Background(), content.KindBook, buf.Bytes())
	assert.Equal(t, buf.Bytes(), out)
	assert.False(t, reduced)
}

func TestOf_Audio(t *testing.T) {
	e := New(1, nil)

	long := bytes.Repeat([]byte{0xAB}, 2*1024*1024)
	out, reduced := e.Of(context.Background(), content.KindAudiobook, long)
	assert.True(t, reduced)
	assert.Len(t, out, AudioBytes)
	assert.Equal(t, long[:AudioBytes], out)

	short := bytes.Repeat([]byte{0x01}, 1000)
	out, reduced = e.Of(context.Background(), content.KindAudiobook, short)
	assert.False(t, reduced)
	assert.Equal(t, short, out)
}

func TestOf_CoverUnchanged(t *testing.T) {
	e := New(1, nil)
	img := []byte{0xff, 0xd8, 0xff}
	out, reduced := e.Of(context.Background(), content.KindCover, img)
	assert.Equal(t, img, out)
	assert.False(t, reduced)
}

func TestOf_CancelledWhileWaitingReturnsOriginal(t *testing.T) {
	e := New(1, nil)
	require.NoError(t, e.sem.Acquire(context.Background(), 1))
	defer e.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := buildEPUB(t, "OEBPS/content.opf", true, 8)
	out, reduced := e.Of(ctx, content.KindBook, src)
	assert.Equal(t, src, out)
	assert.False(t, reduced)
}

func TestTruncateSpine_PrefixedNamespace(t *testing.T) {
	opf := []byte(`<opf:package><opf:spine>` +
		`<opf:itemref idref="a"/><opf:itemref idref="b"/><opf:itemref idref="c"/>` +
		`</opf:spine></opf:package>`)

	out, kept, dropped, err := truncateSpine(opf, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, kept)
	assert.Equal(t, []string{"c"}, dropped)
	assert.Contains(t, string(out), `idref="b"`)
	assert.NotContains(t, string(out), `idref="c"`)
	assert.Contains(t, string(out), `</opf:spine>`)

	_, _, _, err = truncateSpine([]byte(`<package/>`), 5)
	assert.ErrorIs(t, err, errNoSpine)
}
