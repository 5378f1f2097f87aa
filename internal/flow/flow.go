// Package flow extracts field references from Salesforce Flow metadata files.
//
// References come from two kinds of elements. Reference elements such as
// <field> hold a field identifier verbatim. Expression elements such as
// <formula> hold free text which is scanned for Object.Field and Name__c
// tokens. The scan is a heuristic over the text and is not checked against
// the Salesforce formula grammar.
package flow

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// FileSuffix is the suffix of retrieved flow definition files
const FileSuffix = ".flow-meta.xml"

// UnknownStatus is reported when a flow has no top-level <status>
const UnknownStatus = "Unknown"

// ErrEmptyDocument is returned for input with no root element
var ErrEmptyDocument = errors.New("flow document has no root element")

// ReferenceElements carry a field identifier as their whole text
var ReferenceElements = []string{
	"field",
	"leftValueReference",
	"assignToReference",
	"queriedFields",
}

// ExpressionElements carry expressions that may mention fields anywhere in their text
var ExpressionElements = []string{
	"formula",
	"value",
}

var fieldPattern = regexp.MustCompile(`\b\w+\.\w+\b|\b\w+__c\b`)

// Flow is the result of parsing one flow definition
type Flow struct {
	Name       string
	Status     string
	References []string
}

// ParseFile parses a flow definition file. The flow name is the file name
// without FileSuffix.
func ParseFile(path string) (*Flow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow file: %w", err)
	}
	defer f.Close()

	return Parse(NameFromPath(path), f)
}

// NameFromPath derives a flow name from its file path
func NameFromPath(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, FileSuffix) {
		return strings.TrimSuffix(base, FileSuffix)
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse reads a flow definition and collects the distinct field references it makes
func Parse(name string, r io.Reader) (*Flow, error) {
	root, err := parseTree(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse flow %s: %w", name, err)
	}

	// A namespaced root means every element we look for lives in that namespace.
	ns := root.name.Space

	flow := &Flow{
		Name:   name,
		Status: UnknownStatus,
	}

	if status := root.child(xml.Name{Space: ns, Local: "status"}); status != nil {
		if text := strings.TrimSpace(status.text()); text != "" {
			flow.Status = text
		}
	}

	seen := make(map[string]struct{})
	add := func(ref string) {
		if ref == "" {
			return
		}
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		flow.References = append(flow.References, ref)
	}

	for _, local := range ReferenceElements {
		for _, n := range root.findAll(xml.Name{Space: ns, Local: local}) {
			add(strings.TrimSpace(n.text()))
		}
	}

	for _, local := range ExpressionElements {
		for _, n := range root.findAll(xml.Name{Space: ns, Local: local}) {
			for _, ref := range ExtractExpressionReferences(n.deepText()) {
				add(ref)
			}
		}
	}

	sort.Strings(flow.References)
	return flow, nil
}

// ExtractExpressionReferences returns every field-like token in expression text
func ExtractExpressionReferences(expr string) []string {
	return fieldPattern.FindAllString(expr, -1)
}
