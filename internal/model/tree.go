package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TreeNode is one node of the reconstructed sitemap tree.
// Its JSON form is the persisted report document:
//
//	{"url": "...", "status": 200, "redirectedFrom": null, "matchResult": null, "links": [...]}
//
// status is the HTTP code, the error message, or null when the node was never
// fetched.
type TreeNode struct {
	URL            string      `json:"url"`
	Status         Status      `json:"status"`
	RedirectedFrom *string     `json:"redirectedFrom"`
	MatchResult    *string     `json:"matchResult"`
	Links          []*TreeNode `json:"links"`
}

// NewTreeNode creates a tree node from a stored node. Links start empty.
func NewTreeNode(n Node) *TreeNode {
	t := &TreeNode{
		URL:    n.URL,
		Status: n.Status,
		Links:  make([]*TreeNode, 0),
	}
	if n.RedirectedFrom != "" {
		from := n.RedirectedFrom
		t.RedirectedFrom = &from
	}
	if n.MatchResult != "" {
		match := n.MatchResult
		t.MatchResult = &match
	}
	return t
}

// Matched reports whether the node carries a search marker.
func (t *TreeNode) Matched() bool {
	return t.MatchResult != nil
}

// MarshalJSON encodes the status as a number, a string or null.
func (s Status) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StatusSuccess:
		return json.Marshal(s.Code)
	case StatusError:
		return json.Marshal(s.Message)
	default:
		// Pending is an in-flight state; a report only knows "not fetched".
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a number, a string or null.
func (s *Status) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = Unvisited()
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var msg string
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		*s = Failure(msg)
		return nil
	}

	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("status must be a number, a string or null: %w", err)
	}
	*s = Success(code)
	return nil
}
