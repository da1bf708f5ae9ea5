package elnapi

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"mime"
	"strings"
)

// decodeBody converts an upstream response body into a map, detecting
// JSON vs XML by Content-Type and falling back to content-sniffing the
// first non-whitespace byte when the header is absent or unrecognized.
// No third-party library in the reference corpus exercises generic
// upstream XML-to-map decoding, so this one piece is built directly on
// encoding/xml; everything else in this package reuses the pack's
// dependency stack.
func decodeBody(contentType string, body []byte) (map[string]any, error) {
	kind := sniffKind(contentType, body)
	switch kind {
	case bodyKindJSON:
		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("decode json body: %w", err)
		}
		return m, nil
	case bodyKindXML:
		return xmlToMap(body)
	default:
		return nil, fmt.Errorf("unrecognized response body shape")
	}
}

type bodyKind int

const (
	bodyKindUnknown bodyKind = iota
	bodyKindJSON
	bodyKindXML
)

func sniffKind(contentType string, body []byte) bodyKind {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			switch {
			case strings.Contains(mt, "json"):
				return bodyKindJSON
			case strings.Contains(mt, "xml"):
				return bodyKindXML
			}
		}
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	switch {
	case len(trimmed) == 0:
		return bodyKindJSON
	case trimmed[0] == '{' || trimmed[0] == '[':
		return bodyKindJSON
	case trimmed[0] == '<':
		return bodyKindXML
	default:
		return bodyKindUnknown
	}
}

// xmlNode is a generic element tree used to decode upstream XML of
// unknown, data-dependent shape into the same map[string]any shape the
// rest of the pipeline uses for JSON bodies.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

func xmlToMap(body []byte) (map[string]any, error) {
	var root xmlNode
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("decode xml body: %w", err)
	}
	return map[string]any{root.XMLName.Local: nodeToValue(root)}, nil
}

func nodeToValue(n xmlNode) any {
	if len(n.Nodes) == 0 {
		for _, a := range n.Attrs {
			_ = a
		}
		return strings.TrimSpace(n.Content)
	}
	children := make(map[string]any, len(n.Nodes))
	counts := make(map[string]int, len(n.Nodes))
	for _, child := range n.Nodes {
		counts[child.XMLName.Local]++
	}
	for _, child := range n.Nodes {
		name := child.XMLName.Local
		val := nodeToValue(child)
		if counts[name] > 1 {
			list, _ := children[name].([]any)
			children[name] = append(list, val)
			continue
		}
		children[name] = val
	}
	return children
}
