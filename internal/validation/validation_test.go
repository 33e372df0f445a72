package validation

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	base := "/tmp/docs"
	tests := []struct {
		name     string
		userPath string
		want     string
		wantErr  error
	}{
		{"simple", "memo.rtf", "memo.rtf", nil},
		{"nested", "2024/q1/memo.rtf", filepath.Join("2024", "q1", "memo.rtf"), nil},
		{"redundant separators", "2024//memo.rtf", filepath.Join("2024", "memo.rtf"), nil},
		{"dot component", "./memo.rtf", "memo.rtf", nil},
		{"dots inside name", "memo..v2.rtf", "memo..v2.rtf", nil},
		{"inner dotdot stays inside", "a/../memo.rtf", "memo.rtf", nil},
		{"leading dotdot", "../etc/passwd", "", ErrPathTraversal},
		{"escaping dotdot", "a/../../etc/passwd", "", ErrPathTraversal},
		{"bare dotdot", "..", "", ErrPathTraversal},
		{"absolute", "/etc/passwd", "", ErrPathTraversal},
		{"empty", "", "", ErrEmptyPath},
		{"null byte", "memo\x00.rtf", "", ErrInvalidCharacter},
		{"too long", strings.Repeat("a", MaxPathLength+1), "", ErrPathTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(base, tt.userPath)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SanitizePath(%q) error = %v, want %v", tt.userPath, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizePath(%q) error = %v", tt.userPath, err)
			}
			if got != tt.want {
				t.Errorf("SanitizePath(%q) = %q, want %q", tt.userPath, got, tt.want)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr error
	}{
		{"/var/docs/memo.rtf", nil},
		{"relative/memo.md.xz", nil},
		{"", ErrEmptyPath},
		{"memo\x00.rtf", ErrInvalidCharacter},
		{"memo\n.rtf", ErrInvalidCharacter},
		{strings.Repeat("x", MaxPathLength+1), ErrPathTooLong},
	}
	for _, tt := range tests {
		if err := ValidatePath(tt.path); !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidatePath(%q) = %v, want %v", tt.path, err, tt.wantErr)
		}
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name    string
		wantErr error
	}{
		{"memo.rtf", nil},
		{"Quarterly Report.md", nil},
		{"", ErrInvalidFilename},
		{".", ErrInvalidFilename},
		{"..", ErrInvalidFilename},
		{"a/b.md", ErrInvalidFilename},
		{"a\\b.md", ErrInvalidFilename},
		{"tab\there.md", ErrInvalidFilename},
		{"-rf.md", ErrInvalidFilename},
		{strings.Repeat("a", MaxFilenameLength+1), ErrFilenameTooLong},
	}
	for _, tt := range tests {
		if err := ValidateFilename(tt.name); !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateFilename(%q) = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestFileTypeOf(t *testing.T) {
	tests := map[string]FileType{
		"memo.rtf":       FileTypeRTF,
		"MEMO.RTF":       FileTypeRTF,
		"notes.md":       FileTypeMarkdown,
		"notes.markdown": FileTypeMarkdown,
		"memo.rtf.xz":    FileTypeXZ,
		"notes.md.gz":    FileTypeGzip,
		"out.tar":        FileTypeTar,
		"out.tar.xz":     FileTypeTarXZ,
		"out.tgz":        FileTypeTarGZ,
		"letter.yaml":    FileTypeYAML,
		"letter.yml":     FileTypeYAML,
		"letter.xml":     FileTypeXML,
		"templates.db":   FileTypeSQLite,
		"picture.png":    FileTypeUnknown,
		"no_extension":   FileTypeUnknown,
	}
	for name, want := range tests {
		if got := FileTypeOf(name); got != want {
			t.Errorf("FileTypeOf(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestValidateFileType(t *testing.T) {
	tarHeader := make([]byte, 512)
	copy(tarHeader[257:], "ustar")

	tests := []struct {
		name     string
		content  []byte
		filename string
		want     FileType
		wantErr  bool
	}{
		{"rtf", []byte(`{\rtf1\ansi hello}`), "memo.rtf", FileTypeRTF, false},
		{"markdown", []byte("# Title\n\nBody text.\n"), "notes.md", FileTypeMarkdown, false},
		{"yaml", []byte("name: letter\n"), "letter.yaml", FileTypeYAML, false},
		{"xz", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 1, 2}, "memo.rtf.xz", FileTypeXZ, false},
		{"tar.xz", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, "out.tar.xz", FileTypeTarXZ, false},
		{"tar.gz", []byte{0x1f, 0x8b, 8}, "out.tar.gz", FileTypeTarGZ, false},
		{"tar", tarHeader, "out.tar", FileTypeTar, false},
		{"sqlite", []byte("SQLite format 3\x00"), "t.db", FileTypeSQLite, false},
		{"unknown name", []byte(`{\rtf1}`), "upload.bin", FileTypeRTF, false},
		{"markdown that is binary", []byte{0, 1, 2, 3}, "notes.md", FileTypeUnknown, true},
		{"rtf that is gzip", []byte{0x1f, 0x8b, 8}, "memo.rtf", FileTypeUnknown, true},
		{"markdown that is rtf", []byte(`{\rtf1}`), "notes.md", FileTypeUnknown, true},
		{"empty rtf", nil, "memo.rtf", FileTypeRTF, false},
		{"empty markdown", nil, "notes.md", FileTypeMarkdown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFileType(bytes.NewReader(tt.content), tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateFileType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("error = %v, want ErrTypeMismatch", err)
			}
			if got != tt.want {
				t.Errorf("ValidateFileType() = %s, want %s", got, tt.want)
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestValidateFileTypeReadError(t *testing.T) {
	if _, err := ValidateFileType(failingReader{}, "memo.rtf"); err == nil {
		t.Error("expected read error")
	}
}

func TestIsLikelyText(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want bool
	}{
		{"ascii", []byte("plain words\n"), true},
		{"utf8", []byte("caf\xc3\xa9 na\xc3\xafve"), true},
		{"empty", nil, false},
		{"null byte", []byte("a\x00b"), false},
		{"control heavy", bytes.Repeat([]byte{1, 2, 'a'}, 10), false},
	}
	for _, tt := range tests {
		if got := isLikelyText(tt.buf); got != tt.want {
			t.Errorf("isLikelyText(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
