package parsers

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// XML streams an XML document and emits one RawRow per element matching
// RowElement. A namespaced RowElement (e.g. "ns:Trade") requires an exact
// namespace URI match; a non-namespaced RowElement matches by local name in
// ANY namespace — a deliberate asymmetry, not an oversight, since a source
// spec that leaves off the namespace is declaring it doesn't care which one
// it gets.
//
// No third-party XML library appears anywhere in the retrieved pack, so
// this parser is built on the standard library's streaming xml.Decoder —
// a deliberate stdlib choice, recorded in DESIGN.md.
type XML struct {
	// RowElement names the element that starts a row, optionally
	// "prefix:Local".
	RowElement string
	// Namespaces maps a prefix (as used in RowElement and FieldXPaths) to
	// its namespace URI, from the source spec's namespace map.
	Namespaces map[string]string
	// FieldXPaths maps a declared field name to a simplified relative path
	// within the row element: "/"-separated child element names, an
	// optional "@attr" suffix for an attribute, or "." for the row
	// element's own text content.
	FieldXPaths map[string]string
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

func (p XML) Parse(data []byte) ([]RawRow, error) {
	wantPrefix, wantLocal := splitQName(p.RowElement)

	var wantNS string

	if wantPrefix != "" {
		wantNS = p.Namespaces[wantPrefix]
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))

	var rows []RawRow

	rowNum := 0

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("parsers: xml: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !matchesRowElement(start.Name, wantPrefix, wantNS, wantLocal) {
			continue
		}

		var node xmlNode
		if err := decoder.DecodeElement(&node, &start); err != nil {
			return nil, fmt.Errorf("parsers: xml: decode row: %w", err)
		}

		rowNum++

		raw, _ := xml.Marshal(node)

		fields := make(map[string]any, len(p.FieldXPaths))
		for field, path := range p.FieldXPaths {
			fields[field] = resolveXPath(node, path)
		}

		rows = append(rows, RawRow{Number: rowNum, Raw: raw, Fields: fields})
	}

	return rows, nil
}

// matchesRowElement implements the exact-match-if-namespaced,
// local-name-match-otherwise rule.
func matchesRowElement(name xml.Name, wantPrefix, wantNS, wantLocal string) bool {
	if wantPrefix == "" {
		return name.Local == wantLocal
	}

	return name.Space == wantNS && name.Local == wantLocal
}

func splitQName(qname string) (prefix, local string) {
	if idx := strings.IndexByte(qname, ':'); idx >= 0 {
		return qname[:idx], qname[idx+1:]
	}

	return "", qname
}

// resolveXPath walks a simplified relative path against node: "." returns
// the node's own text; "@attr" returns an attribute of node; "a/b" walks
// into the first child named "a", etc., with an optional trailing "@attr".
func resolveXPath(node xmlNode, path string) any {
	if path == "" || path == "." {
		return strings.TrimSpace(node.Content)
	}

	segments := strings.Split(path, "/")
	current := node

	for i, seg := range segments {
		if strings.HasPrefix(seg, "@") {
			attr := seg[1:]
			for _, a := range current.Attrs {
				if a.Name.Local == attr {
					return a.Value
				}
			}

			return nil
		}

		if i == len(segments)-1 {
			for _, child := range current.Children {
				if child.XMLName.Local == seg {
					return strings.TrimSpace(child.Content)
				}
			}

			return nil
		}

		found := false

		for _, child := range current.Children {
			if child.XMLName.Local == seg {
				current = child
				found = true

				break
			}
		}

		if !found {
			return nil
		}
	}

	return strings.TrimSpace(current.Content)
}
