package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"sfex/pkg/errors"
	"sfex/pkg/models"
)

type xmlNode struct {
	name     string
	attrs    []xml.Attr
	text     string
	children []*xmlNode
}

// parseXML selects records by a vendor-agnostic heuristic: any
// <record> element in the document, or, when none exist, every direct
// child of the root element. Both attributes and child element text
// become fields.
func (p *Parser) parseXML(ctx context.Context, content []byte) ([]models.Record, error) {
	root, err := decodeXMLTree(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMalformedContent)
	}
	if root == nil {
		return []models.Record{}, nil
	}

	nodes := collectRecordNodes(root)
	if nodes == nil {
		nodes = root.children
	}

	records := make([]models.Record, 0, len(nodes))
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record := models.NewRecord(recordID(len(records)))
		for _, attr := range node.attrs {
			record.Set(attr.Name.Local, attr.Value)
		}
		for _, child := range node.children {
			record.Set(child.name, strings.TrimSpace(child.text))
		}
		records = append(records, record)
	}

	return records, nil
}

func decodeXMLTree(content []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var root *xmlNode
	var stack []*xmlNode

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &xmlNode{
				name:  t.Name.Local,
				attrs: append([]xml.Attr(nil), t.Attr...),
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.ErrMalformedContent.WithDetail("message", "multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.ErrMalformedContent.WithDetail("message", "unbalanced end element")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}
		}
	}

	if len(stack) != 0 {
		return nil, errors.ErrMalformedContent.WithDetail("message", "unclosed element")
	}

	return root, nil
}

// collectRecordNodes returns all <record> elements in document order,
// or nil when the document has none.
func collectRecordNodes(node *xmlNode) []*xmlNode {
	var found []*xmlNode
	for _, child := range node.children {
		if strings.EqualFold(child.name, "record") {
			found = append(found, child)
		}
		found = append(found, collectRecordNodes(child)...)
	}
	return found
}
