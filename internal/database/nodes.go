package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/sitemapper/internal/model"
)

// maxAliasHops bounds alias resolution. Aliases are kept flat, so a longer
// chain means the table was edited by hand.
const maxAliasHops = 32

const nodeColumns = `seq, url, status, status_code, error_message, redirected_from, parent, depth, match_result, discovered_at, fetched_at`

// querier is implemented by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Seed inserts the root node at depth 0 when the store is empty.
// It reports whether the root was created. Seeding a store that already
// holds the same root (or a root that this URL redirected to) is a no-op,
// which is what makes a crawl resumable. Seeding a store that holds another
// root returns ErrRootMismatch.
func (cdb *CrawlDB) Seed(ctx context.Context, root string) (bool, error) {
	var created bool
	err := cdb.inTx(ctx, "seed", func(tx *sql.Tx) error {
		existing, err := rootNode(ctx, tx)
		if err != nil {
			return err
		}
		if existing == nil {
			created, err = insertNode(ctx, tx, root, "", 0)
			return err
		}
		if existing.URL == root {
			return nil
		}

		target, err := aliasTarget(ctx, tx, root)
		if err != nil {
			return err
		}
		if target == existing.URL {
			return nil
		}
		return fmt.Errorf("%w: store holds %s, requested %s", ErrRootMismatch, existing.URL, root)
	})
	return created, err
}

// PendingFrontier returns every unvisited or pending node whose depth is at
// most depthLimit, in discovery order. It rebuilds the work queue on resume.
func (cdb *CrawlDB) PendingFrontier(ctx context.Context, depthLimit int) ([]model.FrontierItem, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, depth, COALESCE(parent, '')
	FROM nodes
	WHERE status IN ('unvisited', 'pending') AND depth <= ?
	ORDER BY seq
	`, depthLimit)
	if err != nil {
		return nil, storageErr("pending frontier", fmt.Errorf("failed to query frontier: %w", err))
	}
	defer rows.Close()

	var items []model.FrontierItem
	for rows.Next() {
		var item model.FrontierItem
		if err := rows.Scan(&item.URL, &item.Depth, &item.Parent); err != nil {
			return nil, storageErr("pending frontier", fmt.Errorf("failed to scan frontier row: %w", err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("pending frontier", err)
	}
	return items, nil
}

// Node returns the node stored under url, or nil if there is none.
func (cdb *CrawlDB) Node(ctx context.Context, url string) (*model.Node, error) {
	n, err := getNode(ctx, cdb.db, url)
	if err != nil {
		return nil, storageErr("get node", err)
	}
	return n, nil
}

// Root returns the root node, or nil when the store is empty.
// The root is found by its missing parent because its URL may have changed
// through a redirect.
func (cdb *CrawlDB) Root(ctx context.Context) (*model.Node, error) {
	n, err := rootNode(ctx, cdb.db)
	if err != nil {
		return nil, storageErr("get root", err)
	}
	return n, nil
}

// MarkPending moves an unvisited node to pending before its fetch starts.
func (cdb *CrawlDB) MarkPending(ctx context.Context, url string) error {
	res, err := cdb.db.ExecContext(ctx, `
	UPDATE nodes SET status = 'pending'
	WHERE url = ? AND status IN ('unvisited', 'pending')
	`, url)
	if err != nil {
		return storageErr("mark pending", fmt.Errorf("failed to update node: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("mark pending", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s is missing or already terminal", ErrNodeNotFound, url)
	}
	return nil
}

// RecordResult stores the terminal status of one fetch.
// When the fetch was redirected the node is re-keyed or collapsed into the
// final URL as described on CommitPage.
func (cdb *CrawlDB) RecordResult(ctx context.Context, r model.Result) (*model.CommitResult, error) {
	var out *model.CommitResult
	err := cdb.inTx(ctx, "record result", func(tx *sql.Tx) error {
		final, applied, _, err := recordTx(ctx, tx, r)
		if err != nil {
			return err
		}
		out = &model.CommitResult{FinalURL: final, Applied: applied}
		return nil
	})
	return out, err
}

// RecordDiscovery inserts url as an unvisited child of parent.
// It reports false, without error, when url is already known.
// depth must equal the parent's depth plus one.
func (cdb *CrawlDB) RecordDiscovery(ctx context.Context, url string, depth int, parent string) (bool, error) {
	var added bool
	err := cdb.inTx(ctx, "record discovery", func(tx *sql.Tx) error {
		p, err := getNode(ctx, tx, parent)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: parent %s", ErrNodeNotFound, parent)
		}
		if depth != p.Depth+1 {
			return fmt.Errorf("%w: %s at depth %d under %s at depth %d", ErrInvalidDepth, url, depth, parent, p.Depth)
		}
		added, err = discoverTx(ctx, tx, url, parent, depth)
		return err
	})
	return added, err
}

// CommitPage records one processed URL and its discoveries in a single
// transaction.
//
// Redirects are handled as follows, where O is the dispatched URL and F the
// final URL:
//   - F unknown: O's row is re-keyed to F. Seq, parent and depth are kept
//     and redirectedFrom is set to O.
//   - F known and not yet fetched: O's row is removed and F receives the
//     result with redirectedFrom set to O.
//   - F known and terminal: O's row is removed, the result is dropped and
//     Applied is false. No links are inserted.
//
// In every redirect case O is recorded as an alias of F so it is never
// admitted again. Links are inserted one level below the node the result
// was recorded under.
func (cdb *CrawlDB) CommitPage(ctx context.Context, p model.PageResult) (*model.CommitResult, error) {
	var out *model.CommitResult
	err := cdb.inTx(ctx, "commit page", func(tx *sql.Tx) error {
		final, applied, depth, err := recordTx(ctx, tx, p.Result)
		if err != nil {
			return err
		}
		out = &model.CommitResult{FinalURL: final, Applied: applied}
		if !applied {
			return nil
		}

		for _, link := range p.Links {
			added, err := discoverTx(ctx, tx, link, final, depth+1)
			if err != nil {
				return err
			}
			if added {
				out.Added = append(out.Added, model.FrontierItem{URL: link, Depth: depth + 1, Parent: final})
			}
		}
		return nil
	})
	return out, err
}

// ExportTree returns every node in discovery order.
func (cdb *CrawlDB) ExportTree(ctx context.Context) ([]model.Node, error) {
	nodes, err := queryNodes(ctx, cdb.db, `SELECT `+nodeColumns+` FROM nodes ORDER BY seq`)
	if err != nil {
		return nil, storageErr("export tree", err)
	}
	return nodes, nil
}

// Children returns the nodes whose parent is url, in discovery order.
func (cdb *CrawlDB) Children(ctx context.Context, url string) ([]model.Node, error) {
	nodes, err := queryNodes(ctx, cdb.db, `SELECT `+nodeColumns+` FROM nodes WHERE parent = ? ORDER BY seq`, url)
	if err != nil {
		return nil, storageErr("children", err)
	}
	return nodes, nil
}

// Resolve returns the node URL that url is stored under, following redirect
// aliases. It returns ErrNodeNotFound for URLs the store has never seen.
func (cdb *CrawlDB) Resolve(ctx context.Context, url string) (string, error) {
	current := url
	for range maxAliasHops {
		n, err := getNode(ctx, cdb.db, current)
		if err != nil {
			return "", storageErr("resolve", err)
		}
		if n != nil {
			return n.URL, nil
		}

		target, err := aliasTarget(ctx, cdb.db, current)
		if err != nil {
			return "", storageErr("resolve", err)
		}
		if target == "" {
			return "", fmt.Errorf("%w: %s", ErrNodeNotFound, url)
		}
		current = target
	}
	return "", fmt.Errorf("%w: alias chain for %s is too long", ErrInconsistent, url)
}

// Counts returns node totals per status.
func (cdb *CrawlDB) Counts(ctx context.Context) (model.Counts, error) {
	var counts model.Counts

	rows, err := cdb.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM nodes GROUP BY status`)
	if err != nil {
		return counts, storageErr("counts", fmt.Errorf("failed to count nodes: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, storageErr("counts", err)
		}
		counts.Total += n
		switch model.StatusKind(status) {
		case model.StatusUnvisited:
			counts.Unvisited = n
		case model.StatusPending:
			counts.Pending = n
		case model.StatusSuccess:
			counts.Success = n
		case model.StatusError:
			counts.Error = n
		}
	}
	if err := rows.Err(); err != nil {
		return counts, storageErr("counts", err)
	}
	return counts, nil
}

// Reset removes every node, seen entry and alias. Run history is kept.
func (cdb *CrawlDB) Reset(ctx context.Context) error {
	return cdb.inTx(ctx, "reset", func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM nodes`,
			`DELETE FROM seen`,
			`DELETE FROM aliases`,
			`DELETE FROM sqlite_sequence WHERE name = 'nodes'`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to reset store: %w", err)
			}
		}
		return nil
	})
}

// Verify checks the structural rules of the stored graph: the seen-set
// equals the set of node URLs, there is at most one root, every other node
// has a stored parent one level above it, and no alias points at a URL that
// is itself an alias.
func (cdb *CrawlDB) Verify(ctx context.Context) error {
	checks := []struct {
		query string
		what  string
	}{
		{`SELECT COUNT(*) FROM seen WHERE url NOT IN (SELECT url FROM nodes)`, "seen URLs without a node"},
		{`SELECT COUNT(*) FROM nodes WHERE url NOT IN (SELECT url FROM seen)`, "nodes missing from the seen-set"},
		{`SELECT MAX(COUNT(*) - 1, 0) FROM nodes WHERE parent IS NULL`, "extra roots"},
		{`SELECT COUNT(*) FROM nodes WHERE parent IS NULL AND depth != 0`, "roots with a non-zero depth"},
		{`SELECT COUNT(*) FROM nodes c LEFT JOIN nodes p ON c.parent = p.url
		  WHERE c.parent IS NOT NULL AND (p.url IS NULL OR c.depth != p.depth + 1)`, "nodes without a valid parent"},
		{`SELECT COUNT(*) FROM nodes WHERE url IN (SELECT from_url FROM aliases)`, "nodes shadowed by an alias"},
		{`SELECT COUNT(*) FROM aliases WHERE to_url IN (SELECT from_url FROM aliases)`, "chained aliases"},
	}

	for _, c := range checks {
		var n int
		if err := cdb.db.QueryRowContext(ctx, c.query).Scan(&n); err != nil {
			return storageErr("verify", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %d %s", ErrInconsistent, n, c.what)
		}
	}
	return nil
}

// recordTx applies a fetch result and returns the URL it was recorded
// under, whether it was applied and that node's depth.
func recordTx(ctx context.Context, tx *sql.Tx, r model.Result) (string, bool, int, error) {
	if !r.Status.IsTerminal() {
		return "", false, 0, fmt.Errorf("result for %s has non-terminal status %s", r.URL, r.Status)
	}

	orig, err := getNode(ctx, tx, r.URL)
	if err != nil {
		return "", false, 0, err
	}
	if orig != nil && orig.Status.IsTerminal() {
		return orig.URL, false, orig.Depth, nil
	}

	if !r.Redirected() {
		if orig == nil {
			return "", false, 0, fmt.Errorf("%w: %s", ErrNodeNotFound, r.URL)
		}
		applied, err := applyStatus(ctx, tx, orig.URL, r, "")
		return orig.URL, applied, orig.Depth, err
	}

	target, err := getNode(ctx, tx, r.FinalURL)
	if err != nil {
		return "", false, 0, err
	}

	if target == nil {
		if orig == nil {
			return "", false, 0, fmt.Errorf("%w: %s", ErrNodeNotFound, r.URL)
		}
		if err := rekey(ctx, tx, orig.URL, r.FinalURL); err != nil {
			return "", false, 0, err
		}
		applied, err := applyStatus(ctx, tx, r.FinalURL, r, orig.URL)
		return r.FinalURL, applied, orig.Depth, err
	}

	if orig != nil {
		if err := collapse(ctx, tx, orig.URL, target.URL); err != nil {
			return "", false, 0, err
		}
	} else if err := addAlias(ctx, tx, r.URL, target.URL); err != nil {
		return "", false, 0, err
	}

	if target.Status.IsTerminal() {
		return target.URL, false, target.Depth, nil
	}
	applied, err := applyStatus(ctx, tx, target.URL, r, r.URL)
	return target.URL, applied, target.Depth, err
}

// applyStatus writes a terminal status onto a non-terminal node.
func applyStatus(ctx context.Context, tx *sql.Tx, url string, r model.Result, redirectedFrom string) (bool, error) {
	kind, code, msg := statusColumns(r.Status)
	res, err := tx.ExecContext(ctx, `
	UPDATE nodes SET
		status = ?,
		status_code = ?,
		error_message = ?,
		match_result = ?,
		redirected_from = COALESCE(?, redirected_from),
		fetched_at = ?
	WHERE url = ? AND status IN ('unvisited', 'pending')
	`, kind, code, msg, nullString(r.MatchResult), nullString(redirectedFrom), now(), url)
	if err != nil {
		return false, fmt.Errorf("failed to record status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// rekey moves the node stored under from to the address to.
func rekey(ctx context.Context, tx *sql.Tx, from, to string) error {
	for _, stmt := range []struct {
		query string
		args  []any
	}{
		{`UPDATE nodes SET url = ? WHERE url = ?`, []any{to, from}},
		{`UPDATE nodes SET parent = ? WHERE parent = ?`, []any{to, from}},
		{`DELETE FROM seen WHERE url = ?`, []any{from}},
		{`INSERT OR IGNORE INTO seen (url) VALUES (?)`, []any{to}},
		{`DELETE FROM aliases WHERE from_url = ?`, []any{to}},
	} {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("failed to re-key %s: %w", from, err)
		}
	}
	return addAlias(ctx, tx, from, to)
}

// collapse removes the node stored under from in favour of the existing
// node to.
func collapse(ctx context.Context, tx *sql.Tx, from, to string) error {
	for _, stmt := range []struct {
		query string
		args  []any
	}{
		{`UPDATE nodes SET parent = ? WHERE parent = ?`, []any{to, from}},
		{`DELETE FROM nodes WHERE url = ?`, []any{from}},
		{`DELETE FROM seen WHERE url = ?`, []any{from}},
	} {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("failed to collapse %s: %w", from, err)
		}
	}
	return addAlias(ctx, tx, from, to)
}

// addAlias records that from now lives at to, keeping alias chains flat.
func addAlias(ctx context.Context, tx *sql.Tx, from, to string) error {
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO aliases (from_url, to_url) VALUES (?, ?)
	ON CONFLICT(from_url) DO UPDATE SET to_url = excluded.to_url
	`, from, to); err != nil {
		return fmt.Errorf("failed to record alias: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE aliases SET to_url = ? WHERE to_url = ?`, to, from); err != nil {
		return fmt.Errorf("failed to flatten aliases: %w", err)
	}
	return nil
}

// discoverTx admits url under parent unless it is already known or aliased.
func discoverTx(ctx context.Context, tx *sql.Tx, url, parent string, depth int) (bool, error) {
	target, err := aliasTarget(ctx, tx, url)
	if err != nil {
		return false, err
	}
	if target != "" {
		return false, nil
	}
	return insertNode(ctx, tx, url, parent, depth)
}

// insertNode adds url to the seen-set and, if it was new, to the node table.
func insertNode(ctx context.Context, tx *sql.Tx, url, parent string, depth int) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO seen (url) VALUES (?)`, url)
	if err != nil {
		return false, fmt.Errorf("failed to insert seen entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO nodes (url, status, parent, depth, discovered_at)
	VALUES (?, 'unvisited', ?, ?, ?)
	`, url, nullString(parent), depth, now()); err != nil {
		return false, fmt.Errorf("failed to insert node: %w", err)
	}
	return true, nil
}

// aliasTarget returns the URL that url was collapsed into, or "".
func aliasTarget(ctx context.Context, q querier, url string) (string, error) {
	var target string
	err := q.QueryRowContext(ctx, `SELECT to_url FROM aliases WHERE from_url = ?`, url).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query alias: %w", err)
	}
	return target, nil
}

func getNode(ctx context.Context, q querier, url string) (*model.Node, error) {
	n, err := scanNode(q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE url = ?`, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return n, nil
}

func rootNode(ctx context.Context, q querier) (*model.Node, error) {
	n, err := scanNode(q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE parent IS NULL ORDER BY seq LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get root: %w", err)
	}
	return n, nil
}

func queryNodes(ctx context.Context, q querier, query string, args ...any) ([]model.Node, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func scanNode(s rowScanner) (*model.Node, error) {
	var (
		n                                     model.Node
		status, discoveredAt                  string
		code                                  sql.NullInt64
		msg, from, parent, match, fetchedAtNS sql.NullString
	)
	if err := s.Scan(&n.Seq, &n.URL, &status, &code, &msg, &from, &parent, &n.Depth, &match, &discoveredAt, &fetchedAtNS); err != nil {
		return nil, err
	}

	n.Status = model.Status{Kind: model.StatusKind(status)}
	switch n.Status.Kind {
	case model.StatusSuccess:
		n.Status.Code = int(code.Int64)
	case model.StatusError:
		n.Status.Message = msg.String
	}
	n.RedirectedFrom = from.String
	n.Parent = parent.String
	n.MatchResult = match.String
	n.DiscoveredAt = parseTimestamp(discoveredAt)
	if fetchedAtNS.Valid {
		n.FetchedAt = parseTimestamp(fetchedAtNS.String)
	}
	return &n, nil
}

// statusColumns splits a status into its three table columns.
func statusColumns(s model.Status) (string, sql.NullInt64, sql.NullString) {
	var code sql.NullInt64
	var msg sql.NullString
	switch s.Kind {
	case model.StatusSuccess:
		code = sql.NullInt64{Int64: int64(s.Code), Valid: true}
	case model.StatusError:
		msg = sql.NullString{String: s.Message, Valid: true}
	}
	return string(s.Kind), code, msg
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
