package convert

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/fileforge/fileforge/internal/fileutil"
	"github.com/fileforge/fileforge/internal/observability"
)

// ArchiveConverter repacks archives: zip, tar, and tar.gz natively,
// everything else (rar, iso, 7z) through the 7z binary. Extraction
// happens into a job-scoped scratch directory that is removed whether
// or not the repack succeeds.
type ArchiveConverter struct {
	logger *observability.Logger
	cfg    ToolConfig
}

func NewArchiveConverter(logger *observability.Logger, cfg ToolConfig) *ArchiveConverter {
	return &ArchiveConverter{logger: logger.WithComponent("convert.archive"), cfg: cfg}
}

func (c *ArchiveConverter) Convert(ctx context.Context, inputPath, targetFormat string, opts Options) (*Artifact, []string, error) {
	scratch, err := os.MkdirTemp(filepath.Dir(inputPath), "unpack-*")
	if err != nil {
		return nil, nil, ProcessingError("could not create extraction scratch dir", err)
	}
	defer os.RemoveAll(scratch)

	if err := c.extract(ctx, inputPath, scratch); err != nil {
		return nil, nil, err
	}

	outputPath := fileutil.ReplaceExt(inputPath, targetFormat)
	if err := c.pack(ctx, scratch, outputPath, targetFormat); err != nil {
		return nil, nil, err
	}

	artifact, err := newArtifact(outputPath, targetFormat)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info().
		Str("target", targetFormat).
		Int64("size_bytes", artifact.SizeBytes).
		Msg("archive repacked")
	return artifact, nil, nil
}

func (c *ArchiveConverter) extract(ctx context.Context, inputPath, dest string) error {
	switch fileutil.Ext(inputPath) {
	case "zip":
		return extractZip(inputPath, dest)
	case "tar":
		f, err := os.Open(inputPath)
		if err != nil {
			return ProcessingError("could not open archive", err)
		}
		defer f.Close()
		return extractTar(f, dest)
	case "gz", "tgz":
		f, err := os.Open(inputPath)
		if err != nil {
			return ProcessingError("could not open archive", err)
		}
		defer f.Close()
		gz, err := gzip.NewReader(f)
		if err != nil {
			return ProcessingError("could not read gzip stream", err)
		}
		defer gz.Close()
		return extractTar(gz, dest)
	default:
		return runTool(ctx, c.cfg.SevenZipBin, "x", inputPath, "-o"+dest, "-y")
	}
}

func (c *ArchiveConverter) pack(ctx context.Context, srcDir, outputPath, target string) error {
	switch target {
	case "zip":
		return packZip(srcDir, outputPath)
	case "tar":
		f, err := os.Create(outputPath)
		if err != nil {
			return ProcessingError("could not create archive output", err)
		}
		defer f.Close()
		return packTar(srcDir, f)
	case "gz", "tgz":
		f, err := os.Create(outputPath)
		if err != nil {
			return ProcessingError("could not create archive output", err)
		}
		defer f.Close()
		gz := gzip.NewWriter(f)
		if err := packTar(srcDir, gz); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	case "7z", "rar", "iso":
		// 7z refuses to write rar and iso; surface that up front.
		if target != "7z" {
			return UnsupportedFormat(fmt.Sprintf("cannot create %s archives", target))
		}
		// The tool runs inside srcDir, so the output path must survive
		// the directory change.
		abs, err := filepath.Abs(outputPath)
		if err != nil {
			return ProcessingError("could not resolve archive output path", err)
		}
		return runToolIn(ctx, srcDir, c.cfg.SevenZipBin, "a", abs, ".")
	default:
		return UnsupportedFormat(fmt.Sprintf("cannot create %s archives", target))
	}
}

// extractZip unpacks a zip, rejecting entries that would escape the
// destination (zip-slip).
func extractZip(inputPath, dest string) error {
	r, err := zip.OpenReader(inputPath)
	if err != nil {
		return ProcessingError("could not read zip archive", err)
	}
	defer r.Close()

	for _, entry := range r.File {
		target, err := safeJoin(dest, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := fileutil.EnsureDir(target); err != nil {
				return ProcessingError("could not create extracted dir", err)
			}
			continue
		}
		if err := fileutil.EnsureDir(filepath.Dir(target)); err != nil {
			return ProcessingError("could not create extracted dir", err)
		}
		src, err := entry.Open()
		if err != nil {
			return ProcessingError("could not read zip entry", err)
		}
		err = writeExtracted(target, src, entry.Mode())
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return ProcessingError("could not read tar archive", err)
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fileutil.EnsureDir(target); err != nil {
				return ProcessingError("could not create extracted dir", err)
			}
		case tar.TypeReg:
			if err := fileutil.EnsureDir(filepath.Dir(target)); err != nil {
				return ProcessingError("could not create extracted dir", err)
			}
			if err := writeExtracted(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		}
	}
}

func packZip(srcDir, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return ProcessingError("could not create archive output", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = walkFiles(srcDir, func(rel, abs string) error {
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		return copyFileInto(w, abs)
	})
	if err != nil {
		zw.Close()
		return ProcessingError("could not write zip archive", err)
	}
	return zw.Close()
}

func packTar(srcDir string, out io.Writer) error {
	tw := tar.NewWriter(out)
	err := walkFiles(srcDir, func(rel, abs string) error {
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		return copyFileInto(tw, abs)
	})
	if err != nil {
		tw.Close()
		return ProcessingError("could not write tar archive", err)
	}
	return tw.Close()
}

// walkFiles visits regular files under root, handing the callback the
// slash-separated relative name and the absolute path.
func walkFiles(root string, fn func(rel, abs string) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), path)
	})
}

func copyFileInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func writeExtracted(path string, src io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return ProcessingError("could not create extracted file", err)
	}
	_, err = io.Copy(out, src)
	cerr := out.Close()
	if err != nil {
		return ProcessingError("could not write extracted file", err)
	}
	if cerr != nil {
		return ProcessingError("could not finalize extracted file", cerr)
	}
	return nil
}

func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", ProcessingError(fmt.Sprintf("archive entry %q escapes extraction dir", name), nil)
	}
	return target, nil
}
