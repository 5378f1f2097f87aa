package flow

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// node is an element with its direct character data and children
type node struct {
	name     xml.Name
	chars    strings.Builder
	children []*node
}

func parseTree(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)

	var root *node
	var stack []*node

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("unexpected second root element <%s>", t.Name.Local)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].chars.Write(t)
			}
		}
	}

	if root == nil {
		return nil, ErrEmptyDocument
	}
	return root, nil
}

func (n *node) text() string {
	return n.chars.String()
}

// deepText joins the text of the node and all its descendants
func (n *node) deepText() string {
	var parts []string
	var walk func(*node)
	walk = func(cur *node) {
		if s := strings.TrimSpace(cur.text()); s != "" {
			parts = append(parts, s)
		}
		for _, c := range cur.children {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func (n *node) child(name xml.Name) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// findAll returns every descendant with the given name in document order
func (n *node) findAll(name xml.Name) []*node {
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}
