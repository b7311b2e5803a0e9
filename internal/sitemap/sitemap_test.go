package sitemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/nao1215/sitemapper/internal/database"
	"github.com/nao1215/sitemapper/internal/model"
)

const (
	root  = "https://example.test/"
	pageA = "https://example.test/a"
	pageB = "https://example.test/b"
	pageC = "https://example.test/c"
)

// arena is an in-memory Source.
type arena []model.Node

func (a arena) ExportTree(context.Context) ([]model.Node, error) {
	return a, nil
}

func (a arena) Resolve(_ context.Context, url string) (string, error) {
	for _, n := range a {
		if n.URL == url {
			return url, nil
		}
	}
	return "", database.ErrNodeNotFound
}

// exampleStore commits the reference crawl into a fresh store:
// / links /a and /b, /a links /c, /b is 404 and /c matched the search.
func exampleStore(t *testing.T) *database.CrawlDB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Seed(ctx, root); err != nil {
		t.Fatal(err)
	}
	pages := []model.PageResult{
		{Result: model.Result{URL: root, FinalURL: root, Status: model.Success(200)}, Links: []string{pageA, pageB}},
		{Result: model.Result{URL: pageA, FinalURL: pageA, Status: model.Success(200)}, Links: []string{pageC}},
		{Result: model.Result{URL: pageB, FinalURL: pageB, Status: model.Success(404)}},
		{Result: model.Result{URL: pageC, FinalURL: pageC, Status: model.Success(200), MatchResult: "hello"}},
	}
	for _, p := range pages {
		if _, err := db.CommitPage(ctx, p); err != nil {
			t.Fatalf("failed to commit %s: %v", p.URL, err)
		}
	}
	return db
}

// shape renders a tree as "url(status)[children]" for comparisons.
func shape(n *model.TreeNode) string {
	var b strings.Builder
	b.WriteString(strings.TrimPrefix(n.URL, "https://example.test"))
	b.WriteString("(" + n.Status.String() + ")")
	if len(n.Links) > 0 {
		b.WriteString("[")
		for i, c := range n.Links {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(shape(c))
		}
		b.WriteString("]")
	}
	return b.String()
}

// TestBuild tests tree reconstruction from the store.
func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("reference crawl", func(t *testing.T) {
		t.Parallel()

		tree, err := Build(context.Background(), exampleStore(t), "")
		if err != nil {
			t.Fatalf("failed to build: %v", err)
		}

		want := "/(200)[/a(200)[/c(200)],/b(404)]"
		if got := shape(tree); got != want {
			t.Errorf("tree = %s, want %s", got, want)
		}
		if !tree.Links[0].Links[0].Matched() || *tree.Links[0].Links[0].MatchResult != "hello" {
			t.Error("expected /c to carry the search marker")
		}
		if tree.Links[1].MatchResult != nil || tree.RedirectedFrom != nil {
			t.Error("unexpected optional fields")
		}
	})

	t.Run("subtree by url", func(t *testing.T) {
		t.Parallel()

		tree, err := Build(context.Background(), exampleStore(t), pageA)
		if err != nil {
			t.Fatal(err)
		}
		if got := shape(tree); got != "/a(200)[/c(200)]" {
			t.Errorf("tree = %s", got)
		}
	})

	t.Run("root given through a redirect alias", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = db.Close() })

		if _, err := db.Seed(ctx, "https://example.test/old"); err != nil {
			t.Fatal(err)
		}
		_, err = db.CommitPage(ctx, model.PageResult{
			Result: model.Result{URL: "https://example.test/old", FinalURL: root, Status: model.Success(200)},
			Links:  []string{pageA},
		})
		if err != nil {
			t.Fatal(err)
		}

		tree, err := Build(ctx, db, "https://example.test/old")
		if err != nil {
			t.Fatal(err)
		}
		if tree.URL != root || tree.RedirectedFrom == nil || *tree.RedirectedFrom != "https://example.test/old" {
			t.Errorf("unexpected root %+v", tree)
		}
		if got := shape(tree); got != "/(200)[/a(unvisited)]" {
			t.Errorf("tree = %s", got)
		}
	})

	t.Run("unknown root", func(t *testing.T) {
		t.Parallel()

		_, err := Build(context.Background(), exampleStore(t), "https://example.test/nowhere")
		if !errors.Is(err, database.ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})

	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		if _, err := Build(context.Background(), arena{}, ""); !errors.Is(err, ErrNoRoot) {
			t.Errorf("expected ErrNoRoot, got %v", err)
		}
	})

	t.Run("children keep discovery order", func(t *testing.T) {
		t.Parallel()

		nodes := arena{
			{URL: root, Status: model.Success(200)},
			{URL: pageC, Parent: root, Depth: 1},
			{URL: pageA, Parent: root, Depth: 1},
			{URL: pageB, Parent: root, Depth: 1},
		}
		tree, err := Build(context.Background(), nodes, "")
		if err != nil {
			t.Fatal(err)
		}
		if got := shape(tree); got != "/(200)[/c(unvisited),/a(unvisited),/b(unvisited)]" {
			t.Errorf("tree = %s", got)
		}
	})

	t.Run("parent cycle terminates", func(t *testing.T) {
		t.Parallel()

		nodes := arena{
			{URL: root},
			{URL: pageA, Parent: root, Depth: 1},
			{URL: pageB, Parent: pageC, Depth: 2},
			{URL: pageC, Parent: pageB, Depth: 2},
		}
		tree, err := Build(context.Background(), nodes, "")
		if err != nil {
			t.Fatal(err)
		}
		if got := shape(tree); got != "/(unvisited)[/a(unvisited)]" {
			t.Errorf("tree = %s", got)
		}
	})

	t.Run("deep chain without recursion", func(t *testing.T) {
		t.Parallel()

		nodes := arena{{URL: root}}
		parent := root
		for i := 1; i <= 3000; i++ {
			u := fmt.Sprintf("https://example.test/%d", i)
			nodes = append(nodes, model.Node{URL: u, Parent: parent, Depth: i})
			parent = u
		}

		tree, err := Build(context.Background(), nodes, "")
		if err != nil {
			t.Fatal(err)
		}
		if got := Summarize(tree).MaxDepth; got != 3000 {
			t.Errorf("MaxDepth = %d, want 3000", got)
		}
	})

	t.Run("chain beyond the bound", func(t *testing.T) {
		t.Parallel()

		nodes := arena{{URL: root}}
		parent := root
		for i := 1; i <= MaxTreeDepth+1; i++ {
			u := fmt.Sprintf("https://example.test/%d", i)
			nodes = append(nodes, model.Node{URL: u, Parent: parent, Depth: i})
			parent = u
		}

		if _, err := Build(context.Background(), nodes, ""); !errors.Is(err, ErrTreeTooDeep) {
			t.Errorf("expected ErrTreeTooDeep, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := Build(ctx, arena{{URL: root}}, ""); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestEncodeDecode tests that the report document round-trips.
func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		nodes := arena{
			{URL: root, Status: model.Success(200)},
			{URL: pageA, Parent: root, Depth: 1, Status: model.Success(301), RedirectedFrom: "https://example.test/old"},
			{URL: pageB, Parent: root, Depth: 1, Status: model.Failure("connection refused")},
			{URL: pageC, Parent: pageA, Depth: 2, Status: model.Success(200), MatchResult: "needle"},
			{URL: "https://example.test/d", Parent: pageA, Depth: 2, Status: model.Unvisited()},
		}
		tree, err := Build(context.Background(), nodes, "")
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err := Encode(&buf, tree); err != nil {
			t.Fatal(err)
		}
		first := buf.String()

		decoded, err := Decode(strings.NewReader(first))
		if err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if !reflect.DeepEqual(tree, decoded) {
			t.Errorf("decoded tree differs:\n%s", first)
		}

		buf.Reset()
		if err := Encode(&buf, decoded); err != nil {
			t.Fatal(err)
		}
		if buf.String() != first {
			t.Errorf("re-encoded document differs:\n%s\nvs\n%s", buf.String(), first)
		}
	})

	t.Run("document shape", func(t *testing.T) {
		t.Parallel()

		tree, err := Build(context.Background(), arena{
			{URL: root, Status: model.Success(200)},
			{URL: pageA, Parent: root, Depth: 1, Status: model.Failure("timeout")},
			{URL: pageB, Parent: root, Depth: 1},
		}, "")
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err := Encode(&buf, tree); err != nil {
			t.Fatal(err)
		}
		doc := buf.String()
		for _, want := range []string{
			`"status": 200`,
			`"status": "timeout"`,
			`"status": null`,
			`"redirectedFrom": null`,
			`"matchResult": null`,
			`"links": []`,
		} {
			if !strings.Contains(doc, want) {
				t.Errorf("document missing %s:\n%s", want, doc)
			}
		}
	})

	t.Run("missing links default to empty", func(t *testing.T) {
		t.Parallel()

		tree, err := Decode(strings.NewReader(`{"url":"https://example.test/","status":200}`))
		if err != nil {
			t.Fatal(err)
		}
		if tree.Links == nil || tree.RedirectedFrom != nil {
			t.Errorf("unexpected tree %+v", tree)
		}
	})

	t.Run("invalid documents", func(t *testing.T) {
		t.Parallel()

		for _, doc := range []string{
			``,
			`null`,
			`[1,2]`,
			`{"status":200}`,
			`{"url":"https://example.test/","status":true}`,
			`{"url":"https://example.test/","links":[null]}`,
			`{"url":"https://example.test/","links":[{"status":200}]}`,
		} {
			if _, err := Decode(strings.NewReader(doc)); err == nil {
				t.Errorf("expected error for %q", doc)
			}
		}
	})
}

// TestWalk tests depth-first traversal order.
func TestWalk(t *testing.T) {
	t.Parallel()

	tree, err := Build(context.Background(), exampleStore(t), "")
	if err != nil {
		t.Fatal(err)
	}

	var visits []string
	err = Walk(tree, func(n, parent *model.TreeNode, depth int) error {
		p := "-"
		if parent != nil {
			p = strings.TrimPrefix(parent.URL, "https://example.test")
		}
		visits = append(visits, fmt.Sprintf("%s@%d<%s", strings.TrimPrefix(n.URL, "https://example.test"), depth, p))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"/@0<-", "/a@1</", "/c@2</a", "/b@1</"}
	if !reflect.DeepEqual(visits, want) {
		t.Errorf("visits = %v, want %v", visits, want)
	}

	stop := errors.New("stop")
	count := 0
	err = Walk(tree, func(*model.TreeNode, *model.TreeNode, int) error {
		count++
		return stop
	})
	if !errors.Is(err, stop) || count != 1 {
		t.Errorf("expected walk to stop after first node, got %v after %d", err, count)
	}

	if err := Walk(nil, nil); err != nil {
		t.Errorf("nil tree: %v", err)
	}
}

// TestSummarize tests tree aggregation.
func TestSummarize(t *testing.T) {
	t.Parallel()

	tree, err := Build(context.Background(), arena{
		{URL: root, Status: model.Success(200)},
		{URL: pageA, Parent: root, Depth: 1, Status: model.Success(200), RedirectedFrom: "https://example.test/old"},
		{URL: pageB, Parent: root, Depth: 1, Status: model.Success(404)},
		{URL: pageC, Parent: pageA, Depth: 2, Status: model.Success(503), MatchResult: "x"},
		{URL: "https://example.test/d", Parent: pageA, Depth: 2, Status: model.Failure("reset")},
		{URL: "https://example.test/e", Parent: pageC, Depth: 3},
	}, "")
	if err != nil {
		t.Fatal(err)
	}

	s := Summarize(tree)
	if s.Root != root || s.Total != 6 || s.Visited != 5 || s.Unvisited != 1 {
		t.Errorf("unexpected totals %+v", s)
	}
	if s.OK != 2 || s.ClientErrors != 1 || s.ServerErrors != 1 || s.FetchErrors != 1 {
		t.Errorf("unexpected status counts %+v", s)
	}
	if s.Redirected != 1 || s.Matches != 1 || s.MaxDepth != 3 {
		t.Errorf("unexpected extras %+v", s)
	}

	if len(s.Broken) != 3 {
		t.Fatalf("expected 3 broken links, got %+v", s.Broken)
	}
	if s.Broken[0].URL != pageC || s.Broken[0].Parent != pageA {
		t.Errorf("broken links not in tree order: %+v", s.Broken)
	}

	if empty := Summarize(nil); empty.Total != 0 {
		t.Errorf("nil tree summary = %+v", empty)
	}
}
