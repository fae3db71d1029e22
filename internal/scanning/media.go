package scanning

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// RawMedia is an uploaded receipt payload. It is not modified by the pipeline.
type RawMedia struct {
	Data     []byte
	MIMEType string // declared hint, may be empty
	Filename string // optional, used to infer the type when no hint is given
}

// Kind is the input kind assigned by the Classifier.
type Kind int

const (
	KindUnknown Kind = iota
	KindDigitalPDF
	KindScannedPDF
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindDigitalPDF:
		return "digital_pdf"
	case KindScannedPDF:
		return "scanned_pdf"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

const (
	mimePDF  = "application/pdf"
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
	mimeWEBP = "image/webp"
	mimeHEIC = "image/heic"
	mimeHEIF = "image/heif"
)

var extToMIME = map[string]string{
	".pdf":  mimePDF,
	".jpg":  mimeJPEG,
	".jpeg": mimeJPEG,
	".png":  mimePNG,
	".webp": mimeWEBP,
	".heic": mimeHEIC,
	".heif": mimeHEIF,
}

// DetectMIME resolves the effective MIME type of the media: the declared hint
// first, then the filename extension, then content sniffing. Content that is
// clearly a PDF or a known image overrides a generic hint.
func DetectMIME(m RawMedia) string {
	hint := normalizeMIME(m.MIMEType)
	if hint == "image/jpg" {
		hint = mimeJPEG
	}
	if hint == "" || hint == "application/octet-stream" {
		if byExt, ok := extToMIME[strings.ToLower(filepath.Ext(m.Filename))]; ok {
			hint = byExt
		}
	}

	sniffed := sniffMIME(m.Data)
	switch {
	case sniffed == "":
		return hint
	case hint == "" || hint == "application/octet-stream":
		return sniffed
	case sniffed == mimePDF && hint != mimePDF:
		return mimePDF
	}
	return hint
}

func normalizeMIME(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return contentType
}

func sniffMIME(data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return mimePDF
	}
	if isHEICFormat(data) {
		return mimeHEIC
	}
	switch ct := http.DetectContentType(data); ct {
	case mimeJPEG, mimePNG, mimeWEBP, mimePDF:
		return ct
	}
	return ""
}

func isImageMIME(mimeType string) bool {
	switch mimeType {
	case mimeJPEG, mimePNG, mimeWEBP, mimeHEIC, mimeHEIF:
		return true
	}
	return false
}
