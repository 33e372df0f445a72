package template

import (
	"testing"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
)

const yamlLetter = `name: letter
description: Plain letter
header: "# {{title}}"
footer: Regards
styles:
  paragraph: {font: Georgia, family: roman, size: 11, italic: true}
variables:
  title: Letter
`

const xmlLetter = `<?xml version="1.0"?>
<template name="letter">
  <description>Plain letter</description>
  <header># {{title}}</header>
  <footer>
    Regards
  </footer>
  <style kind="paragraph" font="Georgia" family="roman" size="11" italic="true"/>
  <variable name="title">Letter</variable>
</template>`

func TestLoad(t *testing.T) {
	for name, src := range map[string]string{"yaml": yamlLetter, "xml": xmlLetter} {
		t.Run(name, func(t *testing.T) {
			def, err := Load([]byte(src))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if def.Name != "letter" || def.Description != "Plain letter" {
				t.Errorf("name/description = %q/%q", def.Name, def.Description)
			}
			if def.Header != "# {{title}}" || def.Footer != "Regards" {
				t.Errorf("header/footer = %q/%q", def.Header, def.Footer)
			}
			rule, ok := def.Styles["paragraph"]
			if !ok || rule.Font != "Georgia" || rule.Family != "roman" || rule.Size != 11 {
				t.Errorf("paragraph style = %+v", rule)
			}
			if rule.Italic == nil || !*rule.Italic || rule.Bold != nil {
				t.Errorf("flags = italic %v bold %v", rule.Italic, rule.Bold)
			}
			if def.Variables["title"] != "Letter" {
				t.Errorf("variables = %v", def.Variables)
			}
			if err := NewRegistry(0).Register(def, false); err != nil {
				t.Errorf("Register() error = %v", err)
			}
		})
	}
}

func TestLoadSameFingerprint(t *testing.T) {
	y, err := LoadYAML([]byte(yamlLetter))
	if err != nil {
		t.Fatal(err)
	}
	x, err := LoadXML([]byte(xmlLetter))
	if err != nil {
		t.Fatal(err)
	}
	if fingerprint(y) != fingerprint(x) {
		t.Error("YAML and XML forms of the same template differ")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"yaml unknown field", "name: x\nheadr: oops\n"},
		{"yaml syntax", "name: [unterminated\n"},
		{"xml syntax", "<template name='x'><header>"},
		{"xml wrong root", "<doc/>"},
		{"xml style without kind", `<template name="x"><style bold="true"/></template>`},
		{"xml bad bool", `<template name="x"><style kind="heading" bold="maybe"/></template>`},
		{"xml bad size", `<template name="x"><style kind="heading" size="big"/></template>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.src))
			var pe *errors.ParseError
			if !errors.As(err, &pe) {
				t.Errorf("Load() error = %v, want ParseError", err)
			}
		})
	}
}

func TestMarshalYAMLRoundTrip(t *testing.T) {
	def, err := LoadYAML([]byte(yamlLetter))
	if err != nil {
		t.Fatal(err)
	}
	data, err := MarshalYAML(def)
	if err != nil {
		t.Fatal(err)
	}
	back, err := LoadYAML(data)
	if err != nil {
		t.Fatalf("LoadYAML(MarshalYAML()) error = %v\n%s", err, data)
	}
	if fingerprint(back) != fingerprint(def) {
		t.Errorf("round trip changed the definition:\n%s", data)
	}
}
