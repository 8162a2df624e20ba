// Package multipart decodes multipart/form-data bodies that were read fully into memory.
//
// The decoder works on the raw body and the boundary token only. It does not use
// mime/multipart because uploads are size-checked per part after decoding and the
// lenient/strict handling of truncated parts must stay under our control.
package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	ErrMissingBoundary = errors.New("multipart: boundary is missing in content type")
	ErrTruncatedPart   = errors.New("multipart: part is not terminated")
)

// FilePart is a named part that carried a filename attribute.
type FilePart struct {
	Name        string
	FileName    string
	ContentType string
	Data        []byte
}

// Form is the decoded result. Values holds text fields, Files holds file parts.
type Form struct {
	Values map[string]string
	Files  map[string]*FilePart
	// Dropped counts parts that were skipped because they had no header/body
	// separator or no following boundary.
	Dropped int
}

func (f *Form) Value(name string) string {
	return f.Values[name]
}

func (f *Form) File(name string) *FilePart {
	return f.Files[name]
}

// FilesWithPrefix returns the file parts whose field name starts with prefix,
// keyed by the remainder of the name.
func (f *Form) FilesWithPrefix(prefix string) map[string]*FilePart {
	out := make(map[string]*FilePart)
	for name, p := range f.Files {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			out[rest] = p
		}
	}
	return out
}

// BoundaryFromContentType extracts the boundary parameter from a
// multipart/form-data content type header.
func BoundaryFromContentType(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", ErrMissingBoundary
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingBoundary, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("%w: media type %q", ErrMissingBoundary, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", ErrMissingBoundary
	}
	return boundary, nil
}

// Decode parses body leniently: a part that is missing its header/body separator
// or the next boundary is skipped and counted in Form.Dropped.
func Decode(body []byte, boundary string) (*Form, error) {
	return decode(body, boundary, false)
}

// DecodeStrict parses body and fails with ErrTruncatedPart instead of dropping parts.
func DecodeStrict(body []byte, boundary string) (*Form, error) {
	return decode(body, boundary, true)
}

func decode(body []byte, boundary string, strict bool) (*Form, error) {
	if boundary == "" {
		return nil, ErrMissingBoundary
	}

	form := &Form{
		Values: make(map[string]string),
		Files:  make(map[string]*FilePart),
	}

	delim := []byte("--" + boundary)
	pos := bytes.Index(body, delim)
	if pos < 0 {
		if strict {
			return nil, fmt.Errorf("%w: no boundary found", ErrTruncatedPart)
		}
		return form, nil
	}

	for {
		pos += len(delim)
		if bytes.HasPrefix(body[pos:], []byte("--")) {
			// closing delimiter
			return form, nil
		}

		next := bytes.Index(body[pos:], delim)
		if next < 0 {
			// the remainder has no following boundary
			if strict {
				return nil, fmt.Errorf("%w: missing closing boundary", ErrTruncatedPart)
			}
			if len(bytes.TrimSpace(body[pos:])) > 0 {
				form.Dropped++
			}
			return form, nil
		}

		raw := body[pos : pos+next]
		if err := form.addPart(raw); err != nil {
			if strict {
				return nil, err
			}
			form.Dropped++
		}
		pos += next
	}
}

func (f *Form) addPart(raw []byte) error {
	raw = trimLeadingLineBreak(raw)

	idx, sepLen := headerEnd(raw)
	if idx < 0 {
		return fmt.Errorf("%w: no header separator", ErrTruncatedPart)
	}

	headers := parseHeaders(raw[:idx])
	data := raw[idx+sepLen:]
	data = trimTrailingLineBreak(data)

	disposition, ok := headers["content-disposition"]
	if !ok {
		return fmt.Errorf("%w: no content-disposition", ErrTruncatedPart)
	}
	name, fileName, hasFile := parseDisposition(disposition)
	if name == "" {
		return fmt.Errorf("%w: part has no name", ErrTruncatedPart)
	}

	if !hasFile {
		f.Values[name] = string(data)
		return nil
	}

	f.Files[name] = &FilePart{
		Name:        name,
		FileName:    fileName,
		ContentType: headers["content-type"],
		Data:        data,
	}
	return nil
}

// headerEnd finds the blank line closing a part's headers. Whichever of the
// CRLF and bare LF forms comes first wins, so body bytes are never searched
// past it.
func headerEnd(raw []byte) (int, int) {
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf < 0 && lf < 0:
		return -1, 0
	case lf < 0 || (crlf >= 0 && crlf < lf):
		return crlf, 4
	default:
		return lf, 2
	}
}

func parseHeaders(block []byte) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return headers
}

// parseDisposition reads name and filename from a Content-Disposition value.
// hasFile reports whether a filename attribute was present at all, even if empty.
func parseDisposition(value string) (name, fileName string, hasFile bool) {
	for _, attr := range splitParams(value) {
		key, val, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = unquote(strings.TrimSpace(val))
		switch key {
		case "name":
			name = val
		case "filename":
			fileName = val
			hasFile = true
		}
	}
	return name, fileName, hasFile
}

// splitParams splits on semicolons that are not inside a quoted string.
func splitParams(value string) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range value {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quoted:
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ';' && !quoted:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

func trimLeadingLineBreak(b []byte) []byte {
	if bytes.HasPrefix(b, []byte("\r\n")) {
		return b[2:]
	}
	if bytes.HasPrefix(b, []byte("\n")) {
		return b[1:]
	}
	return b
}

func trimTrailingLineBreak(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	if bytes.HasSuffix(b, []byte("\n")) {
		return b[:len(b)-1]
	}
	return b
}
