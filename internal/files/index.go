package files

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/yuin/goldmark"
)

// Indexer extracts and validates text content for an uploaded file,
// reporting whether it became indexable (§4.11: "indexed=true is reported
// when ready"). A real retrieval engine is out of scope (spec.md §1's
// non-goals exclude "the storage engine"); Indexer only gates the
// boolean and leaves embedding/retrieval to an external system.
type Indexer interface {
	Index(ctx context.Context, file kvstore.File, data []byte) bool
}

// ContentIndexer dispatches by MIME type to the matching extractor. Each
// extractor only needs to confirm the content is well-formed and
// non-empty; the extracted text itself is discarded once indexing
// succeeds, since there is no vector store in this module to feed it to.
type ContentIndexer struct{}

func (ContentIndexer) Index(_ context.Context, file kvstore.File, data []byte) bool {
	switch file.Mime {
	case "application/pdf":
		return indexPDF(data)
	case "text/html":
		return indexHTML(data)
	case "text/markdown":
		return indexMarkdown(data)
	default:
		return false
	}
}

// indexPDF extracts plain text from a PDF, grounded on
// nevindra-oasis/ingest/pdf's Extractor (bytes.NewReader + GetPlainText).
func indexPDF(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return false
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(text)) != ""
}

// indexHTML extracts the readable article body, grounded on
// nevindra-oasis/tools/http's readability.FromReader usage. Uploaded HTML
// has no source URL; readability is given an empty base URL for
// relative-link resolution, which degrades gracefully rather than failing.
func indexHTML(data []byte) bool {
	article, err := readability.FromReader(bytes.NewReader(data), &url.URL{})
	if err != nil {
		return false
	}
	return strings.TrimSpace(article.TextContent) != ""
}

// indexMarkdown confirms the document parses, grounded on
// nevindra-oasis/frontend/telegram's goldmark.New().Convert usage, applied
// here as a validity gate rather than a renderer since there is no frontend
// to render into at upload time. This is the module's only goldmark use;
// the C8 Report role writes markdown without it.
func indexMarkdown(data []byte) bool {
	if len(bytes.TrimSpace(data)) == 0 {
		return false
	}
	var buf bytes.Buffer
	if err := goldmark.New().Convert(data, &buf); err != nil {
		return false
	}
	return buf.Len() > 0
}
