package template

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/ir"
	"github.com/FocuswithJustin/LegacyBridge/core/report"
)

func boolPtr(b bool) *bool { return &b }

func TestRegister(t *testing.T) {
	r := NewRegistry(0)
	def := Definition{Name: "letter", Header: "# {{title}}"}
	if err := r.Register(def, false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := r.Register(def, false)
	var exists *errors.AlreadyExistsError
	if !errors.As(err, &exists) {
		t.Errorf("duplicate Register() error = %v, want AlreadyExistsError", err)
	}

	def.Footer = "Regards"
	if err := r.Register(def, true); err != nil {
		t.Fatalf("overwrite Register() error = %v", err)
	}
	got, err := r.Get("letter")
	if err != nil {
		t.Fatal(err)
	}
	if got.Footer != "Regards" || len(got.footer) != 1 {
		t.Errorf("overwritten template = %+v", got.Definition)
	}
}

func TestRegisterInvalid(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"empty name", Definition{Name: "  "}},
		{"unknown kind", Definition{Name: "x", Styles: map[string]StyleRule{"sidebar": {}}}},
		{"bad color", Definition{Name: "x", Styles: map[string]StyleRule{"heading": {Color: "red"}}}},
		{"bad size", Definition{Name: "x", Styles: map[string]StyleRule{"heading": {Size: -2}}}},
		{"invalid header", Definition{Name: "x", Header: "bad \xff bytes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry(0).Register(tt.def, false)
			var ve *errors.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("Register() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(2)
	for i := 0; i < 2; i++ {
		if err := r.Register(Definition{Name: fmt.Sprintf("t%d", i)}, false); err != nil {
			t.Fatal(err)
		}
	}
	err := r.Register(Definition{Name: "t2"}, false)
	if k, _ := errors.KindOf(err); k != errors.KindLimit || err == nil {
		t.Errorf("Register() on full registry error = %v, want limit error", err)
	}
	if err := r.Register(Definition{Name: "t1", Footer: "x"}, true); err != nil {
		t.Errorf("overwrite on full registry error = %v", err)
	}
}

func TestRegistryListClearRemove(t *testing.T) {
	r := NewRegistry(0)
	for _, name := range []string{"b", "a", "c"} {
		if err := r.Register(Definition{Name: name}, false); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("List() = %v", got)
	}
	if err := r.Remove("b"); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if err := r.Remove("b"); !IsNotFound(err) {
		t.Errorf("second Remove() error = %v, want not found", err)
	}
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d", r.Len())
	}
	if _, err := r.Get("a"); !IsNotFound(err) {
		t.Errorf("Get() error = %v, want not found", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	if r != Default() {
		t.Error("Default() returned different registries")
	}
	for _, name := range []string{"memo", "report"} {
		tmpl, err := r.Get(name)
		if err != nil {
			t.Fatalf("built-in %q: %v", name, err)
		}
		for _, f := range tmpl.Validate() {
			if f.Severity == report.SeverityError {
				t.Errorf("built-in %q invalid: %s", name, f)
			}
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := Definition{Name: "x", Header: "h", Variables: map[string]string{"k": "v", "j": "w"}}
	b := Definition{Name: "x", Header: "h", Variables: map[string]string{"j": "w", "k": "v"}}
	if fingerprint(a) != fingerprint(b) {
		t.Error("fingerprint depends on map order")
	}
	b.Header = "H"
	if fingerprint(a) == fingerprint(b) {
		t.Error("fingerprint ignores header")
	}
}

func TestValidateTemplate(t *testing.T) {
	r := NewRegistry(0)
	if err := r.Register(Definition{Name: "v", Header: "{{known}} {{unknown}}", Variables: map[string]string{"known": "k"}}, false); err != nil {
		t.Fatal(err)
	}
	fs, err := r.Validate("v")
	if err != nil {
		t.Fatal(err)
	}
	if len(fs) != 1 || fs[0].Code != CodeUnboundVariable || fs[0].Severity != report.SeverityInfo {
		t.Errorf("Validate() = %v", fs)
	}

	if err := r.Register(Definition{Name: "empty"}, false); err != nil {
		t.Fatal(err)
	}
	fs, _ = r.Validate("empty")
	if len(fs) != 1 || fs[0].Code != CodeEmptyTemplate {
		t.Errorf("Validate(empty) = %v", fs)
	}

	if _, err := r.Validate("nope"); !IsNotFound(err) {
		t.Errorf("Validate(nope) error = %v", err)
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry(0)
	if err := r.Register(Definition{Name: "base", Header: "# {{title}}"}, false); err != nil {
		t.Fatal(err)
	}
	doc := &ir.Document{Blocks: []ir.Block{ir.Paragraph(ir.Text("body"))}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := r.Apply(doc, "base", map[string]string{"title": "T"}); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			def := Definition{Name: fmt.Sprintf("w%d", i), Footer: "f", Styles: map[string]StyleRule{"paragraph": {Bold: boolPtr(true)}}}
			if err := r.Register(def, true); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if r.Len() != 9 {
		t.Errorf("Len() = %d, want 9", r.Len())
	}
}
