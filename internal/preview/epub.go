package preview

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	containerPath   = "META-INF/container.xml"
	fallbackOPFPath = "OEBPS/content.opf"
	mimetypeEntry   = "mimetype"
)

var (
	errNoPackage  = errors.New("epub package document not found")
	errNoSpine    = errors.New("epub spine not found")
	errNoManifest = errors.New("epub manifest not found")

	spinePattern   = regexp.MustCompile(`(?s)(<(?:[A-Za-z0-9_]+:)?spine\b[^>]*>)(.*?)(</(?:[A-Za-z0-9_]+:)?spine\s*>)`)
	itemrefPattern = regexp.MustCompile(`(?s)<(?:[A-Za-z0-9_]+:)?itemref\b[^>]*?(?:/>|>.*?</(?:[A-Za-z0-9_]+:)?itemref\s*>)`)

	manifestPattern = regexp.MustCompile(`(?s)<(?:[A-Za-z0-9_]+:)?manifest\b[^>]*>(.*?)</(?:[A-Za-z0-9_]+:)?manifest\s*>`)
	itemPattern     = regexp.MustCompile(`(?s)<(?:[A-Za-z0-9_]+:)?item\b[^>]*?(?:/>|>.*?</(?:[A-Za-z0-9_]+:)?item\s*>)`)

	idAttr    = regexp.MustCompile(`\sid\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	idrefAttr = regexp.MustCompile(`\sidref\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	hrefAttr  = regexp.MustCompile(`\shref\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

type containerDoc struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// truncateEPUB keeps the first keep spine entries and repackages the archive
// without the content documents only the dropped entries used. reduced is
// false when the spine was already short enough; data is then returned as is.
func truncateEPUB(data []byte, keep int) (out []byte, reduced bool, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false, fmt.Errorf("open archive: %w", err)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	opfPath, err := packagePath(entries)
	if err != nil {
		return nil, false, err
	}
	opf, err := readEntry(entries[opfPath])
	if err != nil {
		return nil, false, err
	}
	rewritten, kept, dropped, err := truncateSpine(opf, keep)
	if err != nil {
		return nil, false, err
	}
	if len(dropped) == 0 {
		return data, false, nil
	}
	rewritten, removed, err := pruneManifest(rewritten, path.Dir(opfPath), kept, dropped)
	if err != nil {
		return nil, false, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// readers expect the uncompressed mimetype entry first
	if mt, ok := entries[mimetypeEntry]; ok {
		if err := writeStored(zw, mimetypeEntry, mt); err != nil {
			return nil, false, err
		}
	}
	for _, f := range zr.File {
		if removed[f.Name] {
			continue
		}
		switch f.Name {
		case mimetypeEntry:
			continue
		case opfPath:
			w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
			if err != nil {
				return nil, false, err
			}
			if _, err := w.Write(rewritten); err != nil {
				return nil, false, err
			}
		default:
			if err := zw.Copy(f); err != nil {
				return nil, false, fmt.Errorf("copy %s: %w", f.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

func packagePath(entries map[string]*zip.File) (string, error) {
	if f, ok := entries[containerPath]; ok {
		raw, err := readEntry(f)
		if err != nil {
			return "", err
		}
		var doc containerDoc
		if err := xml.Unmarshal(raw, &doc); err == nil {
			for _, rf := range doc.Rootfiles {
				p := path.Clean(rf.FullPath)
				if _, ok := entries[p]; ok && rf.FullPath != "" {
					return p, nil
				}
			}
		}
	}
	if _, ok := entries[fallbackOPFPath]; ok {
		return fallbackOPFPath, nil
	}
	return "", errNoPackage
}

// truncateSpine drops itemrefs past keep and reports the idrefs on both sides
// of the cut. Whatever sits between the kept itemrefs is preserved as written.
func truncateSpine(opf []byte, keep int) (out []byte, kept, dropped []string, err error) {
	loc := spinePattern.FindSubmatchIndex(opf)
	if loc == nil {
		return nil, nil, nil, errNoSpine
	}
	bodyStart, bodyEnd := loc[4], loc[5]
	body := opf[bodyStart:bodyEnd]

	refs := itemrefPattern.FindAllIndex(body, -1)
	for i, r := range refs {
		id := attr(body[r[0]:r[1]], idrefAttr)
		if i < keep {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	if len(refs) <= keep {
		return opf, kept, nil, nil
	}
	cut := 0
	if keep > 0 {
		cut = refs[keep-1][1]
	}

	out = make([]byte, 0, len(opf))
	out = append(out, opf[:bodyStart]...)
	out = append(out, body[:cut]...)
	out = append(out, '\n')
	out = append(out, opf[bodyEnd:]...)
	return out, kept, dropped, nil
}

// pruneManifest removes the manifest items of dropped spine entries that no
// kept entry shares, and returns the archive paths of their documents.
// Stylesheets, images and navigation are never spine-only and stay.
func pruneManifest(opf []byte, base string, kept, dropped []string) ([]byte, map[string]bool, error) {
	loc := manifestPattern.FindSubmatchIndex(opf)
	if loc == nil {
		return nil, nil, errNoManifest
	}
	bodyStart, bodyEnd := loc[2], loc[3]
	body := opf[bodyStart:bodyEnd]

	keepID := make(map[string]bool, len(kept))
	for _, id := range kept {
		keepID[id] = true
	}
	dropID := make(map[string]bool, len(dropped))
	for _, id := range dropped {
		if !keepID[id] {
			dropID[id] = true
		}
	}

	items := itemPattern.FindAllIndex(body, -1)
	hrefs := make(map[string]bool)
	stays := make(map[string]bool)
	pruned := make([]byte, 0, len(body))
	last := 0
	for _, it := range items {
		item := body[it[0]:it[1]]
		target := archivePath(base, attr(item, hrefAttr))
		if !dropID[attr(item, idAttr)] {
			stays[target] = true
			continue
		}
		hrefs[target] = true
		pruned = append(pruned, body[last:it[0]]...)
		last = it[1]
	}
	pruned = append(pruned, body[last:]...)

	removed := make(map[string]bool, len(hrefs))
	for p := range hrefs {
		if p != "" && !stays[p] {
			removed[p] = true
		}
	}

	out := make([]byte, 0, len(opf))
	out = append(out, opf[:bodyStart]...)
	out = append(out, pruned...)
	out = append(out, opf[bodyEnd:]...)
	return out, removed, nil
}

func attr(tag []byte, pattern *regexp.Regexp) string {
	m := pattern.FindSubmatch(tag)
	if m == nil {
		return ""
	}
	v := m[1]
	if v == nil {
		v = m[2]
	}
	return html.UnescapeString(string(v))
}

// archivePath resolves a manifest href against the package document's
// directory. Fragments are ignored.
func archivePath(base, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if href == "" {
		return ""
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	return path.Clean(path.Join(base, href))
}

func readEntry(f *zip.File) ([]byte, error) {
	if f == nil {
		return nil, errNoPackage
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func writeStored(zw *zip.Writer, name string, f *zip.File) error {
	raw, err := readEntry(f)
	if err != nil {
		return err
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}
