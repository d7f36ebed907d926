package convert

import (
	"archive/zip"
	"encoding/xml"
	"os"
	"strings"
)

// A .docx file is a zip with a fixed skeleton around word/document.xml.
// Assembling it directly avoids a round trip through soffice for the
// common text-to-docx path.

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const docxDocumentHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`

const docxDocumentFooter = `</w:body></w:document>`

// writeDocx assembles a minimal single-section docx where each input
// line becomes one paragraph.
func writeDocx(path, text string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	entries := []struct {
		name, body string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/document.xml", docxDocumentBody(text)},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			return err
		}
	}
	return zw.Close()
}

func docxDocumentBody(text string) string {
	var sb strings.Builder
	sb.WriteString(docxDocumentHeader)
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		xml.EscapeText(&sb, []byte(strings.TrimRight(line, "\r")))
		sb.WriteString(`</w:t></w:r></w:p>`)
	}
	sb.WriteString(docxDocumentFooter)
	return sb.String()
}
