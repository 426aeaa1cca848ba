package atlassian

import (
	"encoding/json"
	"strconv"
	"strings"
)

// adfNode is one node of an Atlassian Document Format tree
type adfNode struct {
	Type    string                 `json:"type"`
	Text    string                 `json:"text,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Content []adfNode              `json:"content,omitempty"`
}

// descriptionText converts a raw description field to plain text.
// Accepts ADF documents, plain strings (API v2) and null.
func descriptionText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}

	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return adfToText(&doc)
}

// adfToText extracts text block by block, separating top-level blocks with a blank line.
// Node types without a text rendering contribute nothing.
func adfToText(doc *adfNode) string {
	if doc == nil {
		return ""
	}

	blocks := doc.Content
	if doc.Type != "doc" {
		blocks = []adfNode{*doc}
	}

	parts := make([]string, 0, len(blocks))
	for i := range blocks {
		text := strings.TrimSpace(nodeText(&blocks[i]))
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func nodeText(n *adfNode) string {
	switch n.Type {
	case "text":
		return n.Text
	case "hardBreak":
		return "\n"
	case "mention", "emoji", "status":
		if text, ok := n.Attrs["text"].(string); ok {
			return text
		}
		return ""
	case "paragraph", "heading", "codeBlock":
		return childrenText(n, "")
	case "listItem":
		return blockText(n)
	case "blockquote", "panel":
		return childrenText(n, "\n\n")
	case "bulletList":
		return listText(n, func(int) string { return "- " })
	case "orderedList":
		start := 1
		if order, ok := n.Attrs["order"].(float64); ok {
			start = int(order)
		}
		return listText(n, func(i int) string { return strconv.Itoa(start+i) + ". " })
	default:
		return ""
	}
}

func childrenText(n *adfNode, sep string) string {
	parts := make([]string, 0, len(n.Content))
	for i := range n.Content {
		parts = append(parts, nodeText(&n.Content[i]))
	}
	return strings.Join(parts, sep)
}

// blockText puts each non-empty child block on its own line
func blockText(n *adfNode) string {
	parts := make([]string, 0, len(n.Content))
	for i := range n.Content {
		if text := strings.TrimSpace(nodeText(&n.Content[i])); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// listText prefixes each item with its bullet; continuation lines of an item,
// including nested lists, are indented under it
func listText(n *adfNode, bullet func(int) string) string {
	lines := make([]string, 0, len(n.Content))
	for i := range n.Content {
		itemLines := strings.Split(strings.TrimSpace(nodeText(&n.Content[i])), "\n")
		lines = append(lines, bullet(i)+itemLines[0])
		for _, line := range itemLines[1:] {
			lines = append(lines, "  "+line)
		}
	}
	return strings.Join(lines, "\n")
}
