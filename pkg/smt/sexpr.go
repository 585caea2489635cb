package smt

import (
	"fmt"
	"strings"
)

// node is one parsed s-expression.
type node struct {
	atom   string
	quoted bool
	str    bool
	list   []*node
	isList bool
	offset int
}

func (n *node) String() string {
	if !n.isList {
		if n.quoted {
			return "|" + n.atom + "|"
		}
		return n.atom
	}
	parts := make([]string, len(n.list))
	for i, c := range n.list {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// head returns the leading unquoted atom of a list, or "".
func (n *node) head() string {
	if !n.isList || len(n.list) == 0 || n.list[0].isList || n.list[0].quoted {
		return ""
	}
	return n.list[0].atom
}

type reader struct {
	src string
	pos int
}

// readAll parses every top-level s-expression in src.
func readAll(src string) ([]*node, error) {
	r := &reader{src: src}
	var out []*node
	for {
		r.skip()
		if r.pos >= len(r.src) {
			return out, nil
		}
		n, err := r.read()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
}

func (r *reader) skip() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == ';':
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			r.pos++
		default:
			return
		}
	}
}

func (r *reader) read() (*node, error) {
	r.skip()
	if r.pos >= len(r.src) {
		return nil, fmt.Errorf("unexpected end of input")
	}
	start := r.pos
	switch c := r.src[r.pos]; c {
	case '(':
		r.pos++
		n := &node{isList: true, offset: start}
		for {
			r.skip()
			if r.pos >= len(r.src) {
				return nil, fmt.Errorf("unbalanced parenthesis opened at offset %d", start)
			}
			if r.src[r.pos] == ')' {
				r.pos++
				return n, nil
			}
			child, err := r.read()
			if err != nil {
				return nil, err
			}
			n.list = append(n.list, child)
		}
	case ')':
		return nil, fmt.Errorf("unexpected ')' at offset %d", start)
	case '|':
		end := strings.IndexByte(r.src[r.pos+1:], '|')
		if end < 0 {
			return nil, fmt.Errorf("unterminated quoted symbol at offset %d", start)
		}
		r.pos += end + 2
		return &node{atom: r.src[start+1 : start+1+end], quoted: true, offset: start}, nil
	case '"':
		var b strings.Builder
		r.pos++
		for {
			if r.pos >= len(r.src) {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			ch := r.src[r.pos]
			r.pos++
			if ch == '"' {
				if r.pos < len(r.src) && r.src[r.pos] == '"' {
					b.WriteByte('"')
					r.pos++
					continue
				}
				return &node{atom: b.String(), str: true, offset: start}, nil
			}
			b.WriteByte(ch)
		}
	default:
		for r.pos < len(r.src) && !strings.ContainsRune(" \t\r\n();|\"", rune(r.src[r.pos])) {
			r.pos++
		}
		return &node{atom: r.src[start:r.pos], offset: start}, nil
	}
}
