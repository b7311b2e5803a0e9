package sitemap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/sitemapper/internal/model"
)

// MaxTreeDepth is the deepest level Build and Decode accept. The JSON
// decoder of the standard library stops at 10000 nested values and every
// tree level costs two (the object and its links array).
const MaxTreeDepth = 4096

var (
	// ErrNoRoot is returned when the store holds no crawl.
	ErrNoRoot = errors.New("store has no root node")

	// ErrTreeTooDeep is returned when a branch exceeds MaxTreeDepth.
	ErrTreeTooDeep = errors.New("tree exceeds maximum depth")

	// ErrInvalidReport is returned by Decode for documents that are not a
	// sitemap tree.
	ErrInvalidReport = errors.New("invalid sitemap report")
)

// Source is the read-only view of a node store that Build needs.
type Source interface {
	// ExportTree returns every node in discovery order.
	ExportTree(ctx context.Context) ([]model.Node, error)

	// Resolve returns the node URL that url is stored under.
	Resolve(ctx context.Context, url string) (string, error)
}

// Build reconstructs the tree rooted at root. An empty root selects the
// store's own root node. Children keep discovery order and every node
// appears at most once.
func Build(ctx context.Context, src Source, root string) (*model.TreeNode, error) {
	nodes, err := src.ExportTree(ctx)
	if err != nil {
		return nil, err
	}

	byURL := make(map[string]model.Node, len(nodes))
	children := make(map[string][]string)
	start := ""
	for _, n := range nodes {
		byURL[n.URL] = n
		if n.IsRoot() {
			if start == "" {
				start = n.URL
			}
			continue
		}
		children[n.Parent] = append(children[n.Parent], n.URL)
	}

	if root != "" {
		start, err = src.Resolve(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
		}
	}
	if start == "" {
		return nil, ErrNoRoot
	}

	type frame struct {
		tree  *model.TreeNode
		depth int
	}

	rootNode, ok := byURL[start]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRoot, start)
	}
	tree := model.NewTreeNode(rootNode)
	visited := map[string]bool{start: true}
	stack := []frame{{tree: tree}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		kids := children[top.tree.URL]
		if len(kids) > 0 && top.depth+1 > MaxTreeDepth {
			return nil, fmt.Errorf("%w: %s is at depth %d", ErrTreeTooDeep, kids[0], top.depth+1)
		}

		for _, u := range kids {
			if visited[u] {
				continue
			}
			visited[u] = true

			child := model.NewTreeNode(byURL[u])
			top.tree.Links = append(top.tree.Links, child)
			stack = append(stack, frame{tree: child, depth: top.depth + 1})
		}
	}

	return tree, nil
}

// WalkFunc is called for every node of a tree. parent is nil for the root.
// Returning an error stops the walk.
type WalkFunc func(n, parent *model.TreeNode, depth int) error

// Walk visits the tree depth-first in document order.
func Walk(tree *model.TreeNode, fn WalkFunc) error {
	if tree == nil {
		return nil
	}

	type frame struct {
		node   *model.TreeNode
		parent *model.TreeNode
		depth  int
	}

	stack := []frame{{node: tree}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(top.node, top.parent, top.depth); err != nil {
			return err
		}

		// Push in reverse so the first link is visited first.
		for i := len(top.node.Links) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: top.node.Links[i], parent: top.node, depth: top.depth + 1})
		}
	}
	return nil
}

// Summarize counts the nodes of a tree.
func Summarize(tree *model.TreeNode) *model.Summary {
	s := &model.Summary{GeneratedAt: time.Now().UTC()}
	if tree == nil {
		return s
	}

	s.Root = tree.URL
	_ = Walk(tree, func(n, parent *model.TreeNode, depth int) error {
		p := ""
		if parent != nil {
			p = parent.URL
		}
		s.Add(n, p, depth)
		return nil
	})
	return s
}

// Encode writes the tree as an indented JSON document.
func Encode(w io.Writer, tree *model.TreeNode) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return fmt.Errorf("failed to encode sitemap: %w", err)
	}
	return nil
}

// Decode reads a tree written by Encode. Missing links become empty lists
// so a decoded tree encodes back to the same document.
func Decode(r io.Reader) (*model.TreeNode, error) {
	var tree *model.TreeNode
	if err := json.NewDecoder(r).Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidReport)
	}

	err := Walk(tree, func(n, _ *model.TreeNode, depth int) error {
		if n.URL == "" {
			return fmt.Errorf("%w: node without url at depth %d", ErrInvalidReport, depth)
		}
		if depth > MaxTreeDepth {
			return fmt.Errorf("%w: %s is at depth %d", ErrTreeTooDeep, n.URL, depth)
		}
		if n.Links == nil {
			n.Links = make([]*model.TreeNode, 0)
		}
		for _, child := range n.Links {
			if child == nil {
				return fmt.Errorf("%w: null link under %s", ErrInvalidReport, n.URL)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}
