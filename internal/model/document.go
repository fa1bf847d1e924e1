package model

const (
	MimeTextPlain = "text/plain"
	MimePDF       = "application/pdf"
)

// Document is one unit handed to the index for chunking and embedding.
type Document struct {
	ID       string            `json:"document_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	MimeType string            `json:"mime_type"`
}
