package delivery

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"bookvault/internal/domain/content"
)

func defaultContentType(kind content.AssetKind) string {
	switch kind {
	case content.KindCover:
		return "image/jpeg"
	case content.KindAudiobook:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

func defaultExt(kind content.AssetKind) string {
	switch kind {
	case content.KindCover:
		return ".jpg"
	case content.KindAudiobook:
		return ".mp3"
	default:
		return ".bin"
	}
}

func mimeToExt(mime string, kind content.AssetKind) string {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	switch mime {
	case "application/epub+zip":
		return ".epub"
	case "application/pdf":
		return ".pdf"
	case "application/x-fictionbook+xml":
		return ".fb2"
	case "application/x-mobipocket-ebook":
		return ".mobi"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a", "audio/m4a":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return defaultExt(kind)
	}
}

// downloadName picks the stored file name, falling back to the owner title.
func downloadName(owner content.Owner, kind content.AssetKind, asset content.Asset) string {
	name := sanitizeFileName(asset.FileName)
	if name == "" {
		title := sanitizeFileName(owner.Title())
		if title == "" {
			title = string(kind)
		}
		name = title + mimeToExt(asset.MimeType, kind)
	}
	return name
}

// sanitizeFileName strips characters that would break a header value or
// escape a directory on the client side.
func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\\' || r == '/' || r == '\r' || r == '\n':
			return -1
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > 200 {
		name = string([]rune(name)[:200])
	}
	return name
}

// ContentDisposition renders the header with an ASCII fallback name and, for
// non-ASCII names, an RFC 5987 filename* parameter.
func ContentDisposition(disposition, name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r >= 0x20 && r < 0x7f {
			return r
		}
		return '_'
	}, name)

	v := fmt.Sprintf(`%s; filename="%s"`, disposition, fallback)
	if fallback != name {
		v += "; filename*=UTF-8''" + encodeRFC5987(name)
	}
	return v
}

func encodeRFC5987(s string) string {
	const attrChars = "!#$&+-.^_`|~"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') || strings.IndexByte(attrChars, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}
