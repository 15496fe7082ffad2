package extractor

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// node is a minimal element tree keyed by local names. Namespace prefixes are
// dropped while decoding so lookups never depend on how a producer qualified
// its elements.
type node struct {
	name     string
	attrs    map[string]string
	text     string
	children []*node
}

func parseTree(block []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(block))
	dec.Strict = false

	var root *node
	var stack []*node
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced element %s", t.Name.Local)
			}
			n := stack[len(stack)-1]
			if len(n.children) == 0 {
				n.text = strings.TrimSpace(text.String())
			}
			text.Reset()
			stack = stack[:len(stack)-1]
		}
	}

	if root == nil {
		return nil, errors.New("empty record")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unterminated element %s", stack[len(stack)-1].name)
	}
	return root, nil
}

// child returns the first direct child with the given name
func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// childrenNamed returns all direct children with the given name
func (n *node) childrenNamed(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// find resolves a slash separated path. The first segment matches at any depth
// below n, the remaining segments match direct children.
func (n *node) find(path string) *node {
	if n == nil {
		return nil
	}
	parts := strings.Split(path, "/")
	var found *node
	n.walk(func(d *node) bool {
		if d.name != parts[0] {
			return true
		}
		if m := d.follow(parts[1:]); m != nil {
			found = m
			return false
		}
		return true
	})
	return found
}

func (n *node) follow(parts []string) *node {
	if len(parts) == 0 {
		return n
	}
	for _, c := range n.children {
		if c.name != parts[0] {
			continue
		}
		if m := c.follow(parts[1:]); m != nil {
			return m
		}
	}
	return nil
}

// walk visits descendants depth first in document order until fn returns false
func (n *node) walk(fn func(*node) bool) bool {
	for _, c := range n.children {
		if !fn(c) {
			return false
		}
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

func (n *node) attr(name string) string {
	if n == nil {
		return ""
	}
	return n.attrs[name]
}

func (n *node) textOf(path string) string {
	if m := n.find(path); m != nil {
		return m.text
	}
	return ""
}

func (n *node) childText(name string) string {
	if c := n.child(name); c != nil {
		return c.text
	}
	return ""
}

func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseIntPtr(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		v = int(f)
	}
	return &v
}
