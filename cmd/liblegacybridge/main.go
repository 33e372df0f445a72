// Command liblegacybridge builds the LegacyBridge C library:
//
//	go build -buildmode=c-shared -o liblegacybridge.so ./cmd/liblegacybridge
//
// Every function returns 0 or a positive count on success and a negative
// status on failure: -1 null pointer, -2 invalid encoding, -3 conversion
// failure, -4 allocation failure. The message of the last failure on the
// calling thread is read with legacybridge_get_last_error. Buffers written
// to char** outputs are released with legacybridge_free_output_buffer.
//
// The library reads its configuration from the file named by
// LEGACYBRIDGE_CONFIG on first use.
package main

/*
#include <pthread.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

static const char lb_version[] = "1.0.0";

static uintptr_t lb_thread_id(void) { return (uintptr_t)pthread_self(); }
static const char* lb_version_string(void) { return lb_version; }
*/
import "C"

import (
	"context"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/pipeline"
	"github.com/FocuswithJustin/LegacyBridge/internal/ffi"
	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

func main() {}

var (
	libOnce sync.Once
	library *ffi.Library
)

// lib returns the process-wide library, configuring it on first use. A
// broken configuration is logged and the defaults are used instead.
func lib() *ffi.Library {
	libOnce.Do(func() {
		l, err := ffi.NewLibraryFromEnv(context.Background())
		if err != nil {
			logging.Error("library configuration failed, using defaults", "error", err)
			l = ffi.NewLibrary(pipeline.DefaultConfig(), nil, nil)
		}
		library = l
	})
	return library
}

func threadID() uintptr {
	return uintptr(C.lb_thread_id())
}

// call runs fn for the calling thread and returns its status.
func call(op string, fn func(l *ffi.Library) error) C.int {
	l := lib()
	return C.int(l.Do(threadID(), op, func() error { return fn(l) }))
}

func goBytes(p *C.char) []byte {
	return C.GoBytes(unsafe.Pointer(p), C.int(C.strlen(p)))
}

func goString(name string, p *C.char) (string, error) {
	return ffi.Text(name, goBytes(p))
}

// setOutput copies data into a malloc'd NUL-terminated buffer owned by the
// caller until it is passed to legacybridge_free_output_buffer.
func setOutput(l *ffi.Library, out **C.char, outLen *C.int, data []byte) error {
	if len(data) >= math.MaxInt32 {
		return errors.NewAllocation("output of %d bytes exceeds the C interface", len(data))
	}
	p := C.malloc(C.size_t(len(data) + 1))
	if p == nil {
		return errors.NewAllocation("cannot allocate %d bytes", len(data)+1)
	}
	buf := unsafe.Slice((*byte)(p), len(data)+1)
	copy(buf, data)
	buf[len(data)] = 0
	l.Buffers().Track(uintptr(p), len(data)+1)
	*out = (*C.char)(p)
	*outLen = C.int(len(data))
	return nil
}

// transform runs a bytes-in, bytes-out operation.
func transform(op string, in *C.char, out **C.char, outLen *C.int, fn func(l *ffi.Library, input []byte) ([]byte, error)) C.int {
	return call(op, func(l *ffi.Library) error {
		if in == nil || out == nil || outLen == nil {
			return ffi.ErrNullPointer
		}
		*out, *outLen = nil, 0
		data, err := fn(l, goBytes(in))
		if err != nil {
			return err
		}
		return setOutput(l, out, outLen, data)
	})
}

func convert(op string, dir pipeline.Direction, in *C.char, out **C.char, outLen *C.int) C.int {
	return transform(op, in, out, outLen, func(l *ffi.Library, input []byte) ([]byte, error) {
		return l.Convert(context.Background(), string(dir), "", input)
	})
}

//export legacybridge_rtf_to_markdown
func legacybridge_rtf_to_markdown(in *C.char, out **C.char, outLen *C.int) C.int {
	return convert("rtf_to_markdown", pipeline.DirRTFToMarkdown, in, out, outLen)
}

//export legacybridge_markdown_to_rtf
func legacybridge_markdown_to_rtf(in *C.char, out **C.char, outLen *C.int) C.int {
	return convert("markdown_to_rtf", pipeline.DirMarkdownToRTF, in, out, outLen)
}

//export legacybridge_convert
func legacybridge_convert(direction, in, options *C.char, out **C.char, outLen *C.int) C.int {
	return call("convert", func(l *ffi.Library) error {
		if direction == nil || in == nil || out == nil || outLen == nil {
			return ffi.ErrNullPointer
		}
		*out, *outLen = nil, 0
		dir, err := goString("direction", direction)
		if err != nil {
			return err
		}
		var opts string
		if options != nil {
			if opts, err = goString("options", options); err != nil {
				return err
			}
		}
		data, err := l.Convert(context.Background(), dir, opts, goBytes(in))
		if err != nil {
			return err
		}
		return setOutput(l, out, outLen, data)
	})
}

// batch converts count documents. Failed slots get a NULL output and their
// status as length. It returns the number of successes.
func batch(op string, dir pipeline.Direction, ins **C.char, count C.int, outs **C.char, lens *C.int) C.int {
	if ins == nil || outs == nil || lens == nil || count < 0 {
		return call(op, func(*ffi.Library) error { return ffi.ErrNullPointer })
	}
	n := int(count)
	inSlice := unsafe.Slice(ins, n)
	outSlice := unsafe.Slice(outs, n)
	lenSlice := unsafe.Slice(lens, n)

	var ok int
	call(op, func(l *ffi.Library) error {
		inputs := make([][]byte, n)
		for i, p := range inSlice {
			outSlice[i], lenSlice[i] = nil, C.int(ffi.StatusNullPointer)
			if p != nil {
				inputs[i] = goBytes(p)
			}
		}
		items := l.ConvertBatch(context.Background(), dir, inputs)

		var first error
		failed := 0
		for i, it := range items {
			err := it.Err
			if inSlice[i] == nil {
				err = ffi.ErrNullPointer
			}
			if err == nil {
				err = setOutput(l, &outSlice[i], &lenSlice[i], it.Result.Output)
			}
			if err != nil {
				outSlice[i], lenSlice[i] = nil, C.int(ffi.StatusFor(err))
				if first == nil {
					first = fmt.Errorf("document %d: %w", i, err)
				}
				failed++
				continue
			}
			ok++
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed, %w", failed, n, first)
		}
		return nil
	})
	return C.int(ok)
}

//export legacybridge_batch_rtf_to_markdown
func legacybridge_batch_rtf_to_markdown(ins **C.char, count C.int, outs **C.char, lens *C.int) C.int {
	return batch("batch_rtf_to_markdown", pipeline.DirRTFToMarkdown, ins, count, outs, lens)
}

//export legacybridge_batch_markdown_to_rtf
func legacybridge_batch_markdown_to_rtf(ins **C.char, count C.int, outs **C.char, lens *C.int) C.int {
	return batch("batch_markdown_to_rtf", pipeline.DirMarkdownToRTF, ins, count, outs, lens)
}

func convertFile(op string, dir pipeline.Direction, in, out *C.char) C.int {
	return call(op, func(l *ffi.Library) error {
		if in == nil || out == nil {
			return ffi.ErrNullPointer
		}
		inPath, err := goString("input path", in)
		if err != nil {
			return err
		}
		outPath, err := goString("output path", out)
		if err != nil {
			return err
		}
		return l.ConvertFile(context.Background(), dir, inPath, outPath)
	})
}

//export legacybridge_convert_rtf_file_to_md
func legacybridge_convert_rtf_file_to_md(in, out *C.char) C.int {
	return convertFile("convert_rtf_file_to_md", pipeline.DirRTFToMarkdown, in, out)
}

//export legacybridge_convert_md_file_to_rtf
func legacybridge_convert_md_file_to_rtf(in, out *C.char) C.int {
	return convertFile("convert_md_file_to_rtf", pipeline.DirMarkdownToRTF, in, out)
}

// convertFolder returns the number of converted files. When some files
// fail the count is returned and the last error names the failures; when
// none converts the status is returned.
func convertFolder(op string, dir pipeline.Direction, in, out *C.char) C.int {
	var n int
	st := call(op, func(l *ffi.Library) error {
		if in == nil || out == nil {
			return ffi.ErrNullPointer
		}
		inDir, err := goString("input folder", in)
		if err != nil {
			return err
		}
		outDir, err := goString("output folder", out)
		if err != nil {
			return err
		}
		n, err = l.ConvertFolder(context.Background(), dir, inDir, outDir)
		return err
	})
	if n == 0 && st != ffi.StatusOK {
		return st
	}
	return C.int(n)
}

//export legacybridge_convert_folder_rtf_to_md
func legacybridge_convert_folder_rtf_to_md(in, out *C.char) C.int {
	return convertFolder("convert_folder_rtf_to_md", pipeline.DirRTFToMarkdown, in, out)
}

//export legacybridge_convert_folder_md_to_rtf
func legacybridge_convert_folder_md_to_rtf(in, out *C.char) C.int {
	return convertFolder("convert_folder_md_to_rtf", pipeline.DirMarkdownToRTF, in, out)
}

// legacybridge_validate_document writes the JSON validation report. It
// returns 1 when the document has structural errors.
//
//export legacybridge_validate_document
func legacybridge_validate_document(in *C.char, out **C.char, outLen *C.int) C.int {
	valid := true
	st := transform("validate_document", in, out, outLen, func(l *ffi.Library, input []byte) ([]byte, error) {
		data, ok, err := l.Validate(context.Background(), input)
		valid = ok
		return data, err
	})
	if st == ffi.StatusOK && !valid {
		return ffi.StatusInvalid
	}
	return st
}

//export legacybridge_extract_plain_text
func legacybridge_extract_plain_text(in *C.char, out **C.char, outLen *C.int) C.int {
	return transform("extract_plain_text", in, out, outLen, func(l *ffi.Library, input []byte) ([]byte, error) {
		return l.ExtractPlainText(context.Background(), input)
	})
}

//export legacybridge_clean_rtf_formatting
func legacybridge_clean_rtf_formatting(in *C.char, out **C.char, outLen *C.int) C.int {
	return transform("clean_rtf_formatting", in, out, outLen, func(l *ffi.Library, input []byte) ([]byte, error) {
		return l.CleanRTF(context.Background(), input)
	})
}

//export legacybridge_normalize_markdown
func legacybridge_normalize_markdown(in *C.char, out **C.char, outLen *C.int) C.int {
	return transform("normalize_markdown", in, out, outLen, func(l *ffi.Library, input []byte) ([]byte, error) {
		return l.NormalizeMarkdown(context.Background(), input)
	})
}

//export legacybridge_extract_tables_from_rtf
func legacybridge_extract_tables_from_rtf(in *C.char, out **C.char, outLen *C.int) C.int {
	return transform("extract_tables_from_rtf", in, out, outLen, func(l *ffi.Library, input []byte) ([]byte, error) {
		return l.ExtractTablesCSV(context.Background(), input)
	})
}

//export legacybridge_apply_template
func legacybridge_apply_template(in, name *C.char, out **C.char, outLen *C.int) C.int {
	if name == nil {
		return call("apply_template", func(*ffi.Library) error { return ffi.ErrNullPointer })
	}
	return transform("apply_template", in, out, outLen, func(l *ffi.Library, input []byte) ([]byte, error) {
		tmpl, err := goString("template name", name)
		if err != nil {
			return nil, err
		}
		return l.ApplyTemplate(context.Background(), input, tmpl)
	})
}

//export legacybridge_create_template
func legacybridge_create_template(name, definition *C.char) C.int {
	return call("create_template", func(l *ffi.Library) error {
		if name == nil || definition == nil {
			return ffi.ErrNullPointer
		}
		n, err := goString("template name", name)
		if err != nil {
			return err
		}
		def, err := goString("template definition", definition)
		if err != nil {
			return err
		}
		return l.CreateTemplate(context.Background(), n, []byte(def))
	})
}

//export legacybridge_list_templates
func legacybridge_list_templates(out **C.char, outLen *C.int) C.int {
	return call("list_templates", func(l *ffi.Library) error {
		if out == nil || outLen == nil {
			return ffi.ErrNullPointer
		}
		return setOutput(l, out, outLen, l.ListTemplates())
	})
}

//export legacybridge_validate_template
func legacybridge_validate_template(name *C.char) C.int {
	return call("validate_template", func(l *ffi.Library) error {
		if name == nil {
			return ffi.ErrNullPointer
		}
		n, err := goString("template name", name)
		if err != nil {
			return err
		}
		return l.ValidateTemplate(n)
	})
}

// legacybridge_get_last_error copies the calling thread's last error
// message into buf. It returns the message length, or -1 when buf is NULL
// or too small for the message and its terminator.
//
//export legacybridge_get_last_error
func legacybridge_get_last_error(buf *C.char, size C.int) C.int {
	if buf == nil || size <= 0 {
		return -1
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(size))
	return C.int(lib().Errors().CopyTo(threadID(), dst))
}

// legacybridge_free_output_buffer releases a buffer returned by the
// library. Pointers the library did not return, and buffers already
// released, are refused with a non-zero status and left untouched.
//
//export legacybridge_free_output_buffer
func legacybridge_free_output_buffer(ptr *C.char) C.int {
	return call("free_output_buffer", func(l *ffi.Library) error {
		if err := l.Buffers().Release(uintptr(unsafe.Pointer(ptr))); err != nil {
			logging.SecurityEvent("invalid_free", "ffi", "error", err)
			return err
		}
		C.free(unsafe.Pointer(ptr))
		return nil
	})
}

//export legacybridge_get_batch_progress
func legacybridge_get_batch_progress() C.int {
	done, _ := lib().Progress()
	return C.int(done)
}

//export legacybridge_cancel_batch
func legacybridge_cancel_batch() C.int {
	lib().CancelBatch()
	return ffi.StatusOK
}

//export legacybridge_get_version
func legacybridge_get_version() *C.char {
	return C.lb_version_string()
}

//export legacybridge_get_version_info
func legacybridge_get_version_info(major, minor, patch *C.int) C.int {
	return call("get_version_info", func(*ffi.Library) error {
		if major == nil || minor == nil || patch == nil {
			return ffi.ErrNullPointer
		}
		*major, *minor, *patch = ffi.VersionMajor, ffi.VersionMinor, ffi.VersionPatch
		return nil
	})
}

//export legacybridge_test_connection
func legacybridge_test_connection() C.int {
	return 1
}
