package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/internal/archive"
	"github.com/FocuswithJustin/LegacyBridge/internal/validation"
)

// extensions lists the file extensions of each format; the first is used
// for output.
var extensions = map[ir.Format][]string{
	ir.FormatRTF:      {".rtf"},
	ir.FormatMarkdown: {".md", ".markdown"},
}

// ConvertFile converts the file at inPath and writes the output to outPath.
// Paths ending in .xz or .gz are decompressed on read and compressed on
// write. The output file is replaced atomically and left untouched when the
// conversion fails.
func (p *Pipeline) ConvertFile(ctx context.Context, dir Direction, inPath, outPath string) (*Result, error) {
	if !dir.valid() {
		return nil, errors.NewValidation("direction", "unknown direction "+string(dir))
	}
	if err := validation.ValidatePath(inPath); err != nil {
		return nil, errors.NewValidation("input", err.Error())
	}
	if err := validation.ValidatePath(outPath); err != nil {
		return nil, errors.NewValidation("output", err.Error())
	}
	if err := checkFileType(inPath); err != nil {
		return nil, err
	}

	data, err := archive.ReadFile(inPath, p.cfg.Limits.MaxFileSize)
	if err != nil {
		var tl *archive.TooLargeError
		if errors.As(err, &tl) {
			return nil, errors.NewLimit(0, "%s exceeds maximum file size of %d bytes", inPath, tl.Limit)
		}
		return nil, errors.NewIO("read", inPath, err)
	}

	res, err := p.Convert(ctx, dir, data)
	if err != nil {
		return res, err
	}
	if err := archive.WriteFile(outPath, res.Output); err != nil {
		return res, errors.NewIO("write", outPath, err)
	}
	return res, nil
}

// checkFileType rejects an input whose content contradicts its name, such as
// a gzip stream named memo.rtf or binary data named notes.md.
func checkFileType(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.NewIO("read", path, err)
	}
	defer f.Close()
	if _, err := validation.ValidateFileType(f, path); err != nil {
		if errors.Is(err, validation.ErrTypeMismatch) {
			return errors.NewValidation("input", err.Error())
		}
		return errors.NewIO("read", path, err)
	}
	return nil
}

// FileItem is the outcome of one file of a folder conversion.
type FileItem struct {
	In     string
	Out    string
	Result *Result
	Err    error
}

// ConvertDir converts every file of the direction's source format below
// inDir into the same relative location below outDir. See Batch.RunDir.
func (p *Pipeline) ConvertDir(ctx context.Context, dir Direction, inDir, outDir string) ([]FileItem, error) {
	return p.NewBatch(dir).RunDir(ctx, inDir, outDir)
}

// RunDir converts every file of the batch direction's source format below
// inDir into the same relative location below outDir, swapping the
// extension. Compressed sources keep their compression suffix. Symbolic
// links are not followed. Progress counts files; files not started before
// Cancel fail with context.Canceled. Items are sorted by input path.
func (b *Batch) RunDir(ctx context.Context, inDir, outDir string) ([]FileItem, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !b.dir.valid() {
		return nil, errors.NewValidation("direction", "unknown direction "+string(b.dir))
	}
	if err := validation.ValidatePath(inDir); err != nil {
		return nil, errors.NewValidation("input", err.Error())
	}
	if err := validation.ValidatePath(outDir); err != nil {
		return nil, errors.NewValidation("output", err.Error())
	}

	var jobs []FileItem
	err := filepath.WalkDir(inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(inDir, path)
		if err != nil {
			return err
		}
		if rel, err = validation.SanitizePath(inDir, rel); err != nil {
			return nil
		}
		out, ok := OutputName(rel, b.dir)
		if !ok {
			return nil
		}
		jobs = append(jobs, FileItem{In: path, Out: filepath.Join(outDir, out)})
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("walk", inDir, err)
	}

	b.total.Store(int64(len(jobs)))
	b.done.Store(0)
	pool := newWorkerPool[FileItem, FileItem](b.p.cfg.Workers, len(jobs))
	pool.start(func(item FileItem) FileItem {
		defer b.done.Add(1)
		if b.cancelled.Load() {
			item.Err = context.Canceled
			return item
		}
		if err := ctx.Err(); err != nil {
			item.Err = err
			return item
		}
		item.Result, item.Err = b.p.ConvertFile(ctx, b.dir, item.In, item.Out)
		return item
	})
	for _, job := range jobs {
		pool.submit(job)
	}
	pool.close()

	items := make([]FileItem, 0, len(jobs))
	for item := range pool.results {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].In < items[j].In })
	return items, nil
}

// Converted counts the items without an error.
func Converted(items []FileItem) int {
	n := 0
	for _, item := range items {
		if item.Err == nil {
			n++
		}
	}
	return n
}

// OutputName maps a source file name to its output name, or reports false
// when the name is not of the direction's source format.
func OutputName(name string, dir Direction) (string, bool) {
	base := archive.TrimCompression(name)
	suffix := name[len(base):]
	ext := filepath.Ext(base)
	for _, e := range extensions[dir.Source()] {
		if strings.EqualFold(ext, e) {
			return strings.TrimSuffix(base, ext) + extensions[dir.Target()][0] + suffix, true
		}
	}
	return "", false
}
