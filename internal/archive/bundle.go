package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Bundle writes the regular files under srcDir into a tar archive at
// dstPath, compressed by the extension of dstPath (".tar.xz", ".tar.gz" or
// plain ".tar"). Entry names are relative to srcDir and use forward
// slashes. The archive appears atomically.
func Bundle(srcDir, dstPath string) error {
	w, err := NewWriter(dstPath)
	if err != nil {
		return err
	}
	absTmp, _ := filepath.Abs(w.tmp.Name())
	tw := tar.NewWriter(w)
	now := time.Now()

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if abs, _ := filepath.Abs(path); abs == absTmp {
			return nil
		}
		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		// Skip root directory
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			header.Name += "/"
		} else if !info.Mode().IsRegular() {
			return nil
		}
		header.ModTime = now

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err == nil {
		err = tw.Close()
	}
	if err != nil {
		w.Abort()
		return fmt.Errorf("bundle %s: %w", srcDir, err)
	}
	return w.Commit()
}

// Entries lists the names of the regular files in a tar archive written by
// Bundle.
func Entries(path string) ([]string, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var names []string
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if header.Typeflag == tar.TypeReg {
			names = append(names, header.Name)
		}
	}
}
