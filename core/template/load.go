package template

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
)

// Load parses a definition written as YAML or XML. XML is recognized by a
// leading '<'.
func Load(data []byte) (Definition, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("<")) {
		return LoadXML(data)
	}
	return LoadYAML(data)
}

// LoadYAML parses a YAML definition:
//
//	name: letter
//	header: "# {{title}}"
//	styles:
//	  paragraph: {font: Georgia, size: 11}
//	variables:
//	  title: Letter
func LoadYAML(data []byte) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, errors.NewParse("yaml", "", err.Error())
	}
	return def, nil
}

var (
	xpTemplate = xpath.MustCompile("/template")
	xpStyle    = xpath.MustCompile("style")
	xpVariable = xpath.MustCompile("variable")
)

// LoadXML parses an XML definition:
//
//	<template name="letter">
//	  <description>Plain letter</description>
//	  <header># {{title}}</header>
//	  <style kind="paragraph" font="Georgia" size="11"/>
//	  <variable name="title">Letter</variable>
//	</template>
func LoadXML(data []byte) (Definition, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return Definition{}, errors.NewParse("xml", "", err.Error())
	}
	root := xmlquery.QuerySelector(doc, xpTemplate)
	if root == nil {
		return Definition{}, errors.NewParse("xml", "", "missing <template> root element")
	}

	def := Definition{
		Name:        root.SelectAttr("name"),
		Description: childText(root, "description"),
		Header:      childText(root, "header"),
		Footer:      childText(root, "footer"),
	}
	for _, n := range xmlquery.QuerySelectorAll(root, xpStyle) {
		kind := n.SelectAttr("kind")
		if kind == "" {
			return Definition{}, errors.NewParse("xml", "", "<style> without kind attribute")
		}
		rule, err := xmlStyle(n)
		if err != nil {
			return Definition{}, errors.NewParse("xml", "", fmt.Sprintf("style %q: %v", kind, err))
		}
		if def.Styles == nil {
			def.Styles = map[string]StyleRule{}
		}
		def.Styles[kind] = rule
	}
	for _, n := range xmlquery.QuerySelectorAll(root, xpVariable) {
		if def.Variables == nil {
			def.Variables = map[string]string{}
		}
		def.Variables[n.SelectAttr("name")] = n.InnerText()
	}
	return def, nil
}

func childText(n *xmlquery.Node, name string) string {
	c := n.SelectElement(name)
	if c == nil {
		return ""
	}
	return dedent(c.InnerText())
}

// dedent strips the indentation XML formatting adds to multi-line text.
func dedent(s string) string {
	lines := strings.Split(strings.Trim(s, "\r\n"), "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimLeft(strings.TrimRight(ln, "\r"), " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func xmlStyle(n *xmlquery.Node) (StyleRule, error) {
	rule := StyleRule{
		Font:   n.SelectAttr("font"),
		Family: n.SelectAttr("family"),
		Color:  n.SelectAttr("color"),
	}
	flags := []struct {
		attr string
		dst  **bool
	}{
		{"bold", &rule.Bold}, {"italic", &rule.Italic}, {"underline", &rule.Underline}, {"strike", &rule.Strike},
	}
	for _, f := range flags {
		v := n.SelectAttr(f.attr)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rule, fmt.Errorf("%s: %w", f.attr, err)
		}
		*f.dst = &b
	}
	if v := n.SelectAttr("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return rule, fmt.Errorf("size: %w", err)
		}
		rule.Size = size
	}
	return rule, nil
}

// MarshalYAML writes def as YAML.
func MarshalYAML(def Definition) ([]byte, error) {
	return yaml.Marshal(def)
}
