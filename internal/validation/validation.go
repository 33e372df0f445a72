// Package validation checks user-supplied paths and file names before
// documents are read from or written to disk, and identifies document files
// by their content.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Path and name errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrTypeMismatch     = errors.New("file type mismatch")
)

// ValidatePath rejects empty and overlong paths and paths holding NUL or
// other control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	if strings.IndexFunc(path, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
	}
	return nil
}

// SanitizePath cleans a path relative to baseDir and rejects it when it is
// absolute or resolves outside baseDir. The cleaned relative path is
// returned.
func SanitizePath(baseDir, userPath string) (string, error) {
	if err := ValidatePath(userPath); err != nil {
		return "", err
	}

	clean := filepath.Clean(userPath)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, clean))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return clean, nil
}

// ValidateFilename checks a single path element.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return ErrInvalidFilename
	case len(name) > MaxFilenameLength:
		return ErrFilenameTooLong
	case name == "." || name == "..":
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
	case strings.HasPrefix(name, "-"):
		// Would read as a flag on a command line.
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// FileType identifies a file handled by the converter.
type FileType string

// File types.
const (
	FileTypeRTF      FileType = "rtf"
	FileTypeMarkdown FileType = "markdown"
	FileTypeXZ       FileType = "xz"
	FileTypeGzip     FileType = "gzip"
	FileTypeTar      FileType = "tar"
	FileTypeTarXZ    FileType = "tar.xz"
	FileTypeTarGZ    FileType = "tar.gz"
	FileTypeYAML     FileType = "yaml"
	FileTypeXML      FileType = "xml"
	FileTypeSQLite   FileType = "sqlite"
	FileTypeUnknown  FileType = "unknown"
)

var magicBytes = []struct {
	fileType FileType
	magic    []byte
	offset   int
}{
	{FileTypeRTF, []byte(`{\rtf`), 0},
	{FileTypeTar, []byte("ustar"), 257},
	{FileTypeGzip, []byte{0x1f, 0x8b}, 0},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{FileTypeSQLite, []byte("SQLite format 3"), 0},
}

// ValidateFileType reads the head of a file and checks that its content
// agrees with the type its name implies. Compressed files are accepted by
// their container signature. Text types without a signature (Markdown,
// YAML, XML) only need to look like text or be empty. Names of unknown type
// return the detected type.
func ValidateFileType(r io.Reader, filename string) (FileType, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("read file header: %w", err)
	}
	buf = buf[:n]

	detected := detectFileTypeFromMagic(buf)
	expected := FileTypeOf(filename)

	switch {
	case expected == detected:
		return expected, nil
	case expected == FileTypeUnknown:
		return detected, nil
	case (expected == FileTypeTarXZ || expected == FileTypeXZ) && detected == FileTypeXZ:
		return expected, nil
	case (expected == FileTypeTarGZ || expected == FileTypeGzip) && detected == FileTypeGzip:
		return expected, nil
	case detected == FileTypeUnknown && isTextType(expected):
		if len(buf) == 0 || isLikelyText(buf) {
			return expected, nil
		}
		return FileTypeUnknown, fmt.Errorf("%w: %s is not text", ErrTypeMismatch, filename)
	case detected == FileTypeUnknown:
		return expected, nil
	}
	return FileTypeUnknown, fmt.Errorf("%w: extension suggests %s but content is %s", ErrTypeMismatch, expected, detected)
}

func isTextType(t FileType) bool {
	return t == FileTypeMarkdown || t == FileTypeYAML || t == FileTypeXML
}

func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) && bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

// FileTypeOf returns the type implied by a file name.
func FileTypeOf(filename string) FileType {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FileTypeTarXZ
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FileTypeTarGZ
	}

	switch filepath.Ext(lower) {
	case ".rtf":
		return FileTypeRTF
	case ".md", ".markdown":
		return FileTypeMarkdown
	case ".xz":
		return FileTypeXZ
	case ".gz":
		return FileTypeGzip
	case ".tar":
		return FileTypeTar
	case ".yaml", ".yml":
		return FileTypeYAML
	case ".xml":
		return FileTypeXML
	case ".db", ".sqlite", ".sqlite3":
		return FileTypeSQLite
	}
	return FileTypeUnknown
}

// isLikelyText reports whether more than 95% of buf is printable ASCII or
// whitespace, ignoring bytes of multi-byte UTF-8 sequences.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 || bytes.IndexByte(buf, 0) >= 0 {
		return false
	}
	printable, control := 0, 0
	for _, b := range buf {
		switch {
		case b == '\t' || b == '\n' || b == '\r' || (b >= 0x20 && b <= 0x7e):
			printable++
		case b < 0x20:
			control++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
