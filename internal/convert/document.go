package convert

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"

	"github.com/fileforge/fileforge/internal/fileutil"
	"github.com/fileforge/fileforge/internal/observability"
)

// sourceClass is the one-time classification of a document input.
type sourceClass int

const (
	classOther sourceClass = iota // not a PDF, or unreadable by the PDF engine
	classMachineReadable
	classScanned
)

// docInput bundles everything a strategy needs to run.
type docInput struct {
	path   string
	target string
	class  sourceClass
	text   string // extracted PDF text, empty for classOther
	opts   Options
}

// docStrategy is one rung of the document conversion ladder. applies is
// a pure predicate on the classified input; run produces the output
// path or a typed error.
type docStrategy struct {
	name    string
	applies func(in docInput) bool
	run     func(ctx context.Context, in docInput) (string, error)
}

// DocumentConverter converts documents by walking an ordered strategy
// chain: table extraction for tabular targets, structured text
// extraction for machine-readable PDFs, OCR for scanned ones, and a
// generic office transcode as the last resort. Each abandoned strategy
// leaves a warning on the job; the job fails only when every applicable
// strategy is exhausted.
type DocumentConverter struct {
	logger     *observability.Logger
	cfg        ToolConfig
	strategies []docStrategy
}

func NewDocumentConverter(logger *observability.Logger, cfg ToolConfig) *DocumentConverter {
	c := &DocumentConverter{
		logger: logger.WithComponent("convert.document"),
		cfg:    cfg,
	}
	c.strategies = []docStrategy{
		{
			name: "table-extraction",
			applies: func(in docInput) bool {
				return in.opts.TableExtraction && isTabularTarget(in.target) && in.class != classOther
			},
			run: c.runTableExtraction,
		},
		{
			name: "structured-extraction",
			applies: func(in docInput) bool {
				return in.class == classMachineReadable && in.target != "pdf" && !isTabularTarget(in.target)
			},
			run: c.runStructuredExtraction,
		},
		{
			name: "ocr",
			applies: func(in docInput) bool {
				return (in.class == classScanned || (in.opts.OCREnabled && in.class != classOther)) &&
					in.target != "pdf" && !isTabularTarget(in.target)
			},
			run: c.runOCR,
		},
		{
			name:    "office-transcode",
			applies: func(in docInput) bool { return true },
			run:     c.runOfficeTranscode,
		},
	}
	return c
}

// ocrFidelityWarning accompanies any output whose text came out of OCR
// rather than an embedded text layer.
const ocrFidelityWarning = "text was recovered by OCR and layout fidelity may be reduced"

func (c *DocumentConverter) Convert(ctx context.Context, inputPath, targetFormat string, opts Options) (*Artifact, []string, error) {
	in := c.classify(inputPath, targetFormat, opts)

	var warnings []string
	var lastErr error
	for _, s := range c.strategies {
		if !s.applies(in) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, warnings, Timeout("conversion deadline reached", err)
		}

		outputPath, err := s.run(ctx, in)
		if err == nil {
			artifact, aerr := newArtifact(outputPath, targetFormat)
			if aerr != nil {
				err = aerr
			} else {
				if s.name == "ocr" {
					warnings = append(warnings, ocrFidelityWarning)
				}
				c.logger.Info().
					Str("strategy", s.name).
					Str("target", targetFormat).
					Msg("document converted")
				return artifact, warnings, nil
			}
		}

		lastErr = err
		if KindOf(err) == KindTimeout {
			return nil, warnings, err
		}
		warnings = append(warnings, fmt.Sprintf("%s strategy did not produce output: %s", s.name, strategyFailureReason(err)))
		c.logger.Warn().
			Str("strategy", s.name).
			Err(err).
			Msg("document strategy failed, trying next")
	}

	if lastErr == nil {
		lastErr = ProcessingError("no conversion strategy applies to this input", nil)
	}
	return nil, warnings, lastErr
}

// classify opens the input with the PDF engine once. PDFs split into
// machine-readable and scanned based on how much embedded text they
// carry; everything else goes straight to the office transcode.
func (c *DocumentConverter) classify(inputPath, targetFormat string, opts Options) docInput {
	in := docInput{path: inputPath, target: targetFormat, class: classOther, opts: opts}
	if fileutil.Ext(inputPath) != "pdf" {
		return in
	}

	doc, err := fitz.New(inputPath)
	if err != nil {
		c.logger.Warn().Err(err).Msg("could not open input with PDF engine")
		return in
	}
	defer doc.Close()

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			continue
		}
		sb.WriteString(text)
	}
	in.text = sb.String()

	if len(strings.TrimSpace(in.text)) >= c.cfg.ScannedTextThreshold {
		in.class = classMachineReadable
	} else {
		in.class = classScanned
	}
	return in
}

// runStructuredExtraction synthesizes the target from the text already
// recovered during classification. A text layer that is mostly encoding
// debris is untrustworthy and the next strategy should take over.
func (c *DocumentConverter) runStructuredExtraction(ctx context.Context, in docInput) (string, error) {
	if !textLayerUsable(in.text) {
		return "", ProcessingError("embedded text layer is mostly unreadable glyphs", nil)
	}
	return c.synthesizeFromText(ctx, in, in.text)
}

// textLayerUsable reports whether extracted text looks like prose rather
// than encoding debris. PDFs with broken ToUnicode maps satisfy the
// length threshold while extracting as replacement runes and control
// bytes; those must fall through to OCR.
func textLayerUsable(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	var readable, total int
	for _, r := range trimmed {
		total++
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		readable++
	}
	return float64(readable) >= 0.85*float64(total)
}

// runOCR rasterizes each page and feeds it to tesseract, concatenating
// recognized text in page order.
func (c *DocumentConverter) runOCR(ctx context.Context, in docInput) (string, error) {
	doc, err := fitz.New(in.path)
	if err != nil {
		return "", ProcessingError("could not open input for OCR", err)
	}
	defer doc.Close()

	scratch, err := os.MkdirTemp(filepath.Dir(in.path), "ocr-*")
	if err != nil {
		return "", ProcessingError("could not create OCR scratch dir", err)
	}
	defer os.RemoveAll(scratch)

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		if err := ctx.Err(); err != nil {
			return "", Timeout("OCR cancelled", err)
		}

		img, err := doc.Image(page)
		if err != nil {
			return "", ProcessingError(fmt.Sprintf("could not rasterize page %d", page+1), err)
		}

		pagePath := filepath.Join(scratch, fmt.Sprintf("page_%03d.jpg", page+1))
		f, err := os.Create(pagePath)
		if err != nil {
			return "", ProcessingError("could not stage page image", err)
		}
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
		f.Close()
		if err != nil {
			return "", ProcessingError(fmt.Sprintf("could not encode page %d", page+1), err)
		}

		out, err := runToolOutput(ctx, c.cfg.TesseractBin, pagePath, "stdout")
		if err != nil {
			return "", err
		}
		sb.Write(out)
		sb.WriteString("\n")
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", ProcessingError("OCR recovered no text", nil)
	}
	return c.synthesizeFromText(ctx, in, text)
}

// runTableExtraction recovers tabular rows from the PDF text layer and
// emits CSV, delegating to the office transcode for spreadsheet
// containers.
func (c *DocumentConverter) runTableExtraction(ctx context.Context, in docInput) (string, error) {
	rows := extractTableRows(in.text)
	if len(rows) == 0 {
		return "", ProcessingError("no table structure detected in input", nil)
	}

	csvPath := fileutil.ReplaceExt(in.path, "csv")
	if err := writeCSV(csvPath, rows); err != nil {
		return "", ProcessingError("could not write extracted table", err)
	}
	if in.target == "csv" {
		return csvPath, nil
	}

	outputPath, err := c.officeConvert(ctx, csvPath, in.target)
	os.Remove(csvPath)
	return outputPath, err
}

// runOfficeTranscode hands the raw input to soffice.
func (c *DocumentConverter) runOfficeTranscode(ctx context.Context, in docInput) (string, error) {
	return c.officeConvert(ctx, in.path, in.target)
}

// synthesizeFromText writes recovered text into the target container.
// Plain-text targets are written directly, docx is assembled natively,
// and everything else round-trips through soffice.
func (c *DocumentConverter) synthesizeFromText(ctx context.Context, in docInput, text string) (string, error) {
	outputPath := fileutil.ReplaceExt(in.path, in.target)

	switch in.target {
	case "txt", "md":
		if err := os.WriteFile(outputPath, []byte(text), 0o644); err != nil {
			return "", ProcessingError("could not write text output", err)
		}
		return outputPath, nil
	case "docx":
		if err := writeDocx(outputPath, text); err != nil {
			return "", ProcessingError("could not assemble docx output", err)
		}
		return outputPath, nil
	default:
		txtPath := fileutil.ReplaceExt(in.path, "txt")
		if err := os.WriteFile(txtPath, []byte(text), 0o644); err != nil {
			return "", ProcessingError("could not stage text for transcode", err)
		}
		out, err := c.officeConvert(ctx, txtPath, in.target)
		os.Remove(txtPath)
		return out, err
	}
}

// officeConvert shells out to soffice headless. soffice names its
// output after the input stem, so the result lands next to the input.
func (c *DocumentConverter) officeConvert(ctx context.Context, inputPath, target string) (string, error) {
	dir := filepath.Dir(inputPath)
	err := runTool(ctx, c.cfg.SofficeBin,
		"--headless",
		"--convert-to", target,
		"--outdir", dir,
		inputPath,
	)
	if err != nil {
		return "", err
	}

	outputPath := fileutil.ReplaceExt(inputPath, target)
	if _, serr := os.Stat(outputPath); serr != nil {
		return "", ProcessingError(fmt.Sprintf("office transcode reported success but produced no %s output", target), serr)
	}
	return outputPath, nil
}

func isTabularTarget(target string) bool {
	return target == "csv" || target == "xlsx" || target == "ods"
}

func strategyFailureReason(err error) string {
	if err == nil {
		return "unknown failure"
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
