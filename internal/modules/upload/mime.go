package upload

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"bookvault/internal/multipart"
)

// sniffed is the type detected from content, with the client's declared type
// used only when detection lands on a container or catch-all type.
type sniffed struct {
	mimeType string
	ext      string
	image    bool
}

func sniff(part *multipart.FilePart) sniffed {
	detected := mimetype.Detect(part.Data)
	out := sniffed{
		mimeType: baseType(detected.String()),
		ext:      detected.Extension(),
	}
	out.image = strings.HasPrefix(out.mimeType, "image/")

	generic := detected.Is("application/octet-stream") || detected.Is("application/zip") || detected.Is("text/plain")
	if declared := baseType(part.ContentType); generic && declared != "" && declared != "application/octet-stream" {
		out.mimeType = declared
	}
	if ext := strings.ToLower(path.Ext(cleanFileName(part.FileName))); ext != "" && generic {
		out.ext = ext
	}
	return out
}

func baseType(v string) string {
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mediaType
}

// cleanFileName drops any client-side directory from a part's filename.
func cleanFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}
