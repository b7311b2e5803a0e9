package model

import "time"

// Summary aggregates a sitemap tree for quick display.
// It plays the role a scan summary plays for a report: the numbers a human
// looks at first.
type Summary struct {
	// Root is the canonical root URL.
	Root string `json:"root"`

	// GeneratedAt is when the summary was computed.
	GeneratedAt time.Time `json:"generated_at"`

	// Total is the number of nodes in the tree.
	Total int `json:"total"`

	// Visited is the number of nodes with a terminal status.
	Visited int `json:"visited"`

	// Unvisited is the number of nodes never fetched.
	Unvisited int `json:"unvisited"`

	// OK counts 2xx responses.
	OK int `json:"ok"`

	// Redirected counts nodes reached through a redirect.
	Redirected int `json:"redirected"`

	// ClientErrors counts 4xx responses.
	ClientErrors int `json:"client_errors"`

	// ServerErrors counts 5xx responses.
	ServerErrors int `json:"server_errors"`

	// FetchErrors counts nodes whose fetch failed without a response.
	FetchErrors int `json:"fetch_errors"`

	// Matches counts nodes carrying a search marker.
	Matches int `json:"matches"`

	// MaxDepth is the deepest level present in the tree.
	MaxDepth int `json:"max_depth"`

	// Broken lists nodes that answered 4xx/5xx or failed, in tree order.
	Broken []BrokenLink `json:"broken,omitempty"`
}

// BrokenLink is a node that did not answer successfully.
type BrokenLink struct {
	URL    string `json:"url"`
	Parent string `json:"parent,omitempty"`
	Status string `json:"status"`
}

// Add accounts for one node found at the given depth under parent.
func (s *Summary) Add(n *TreeNode, parent string, depth int) {
	s.Total++
	if depth > s.MaxDepth {
		s.MaxDepth = depth
	}
	if n.RedirectedFrom != nil {
		s.Redirected++
	}
	if n.MatchResult != nil {
		s.Matches++
	}

	switch n.Status.Kind {
	case StatusSuccess:
		s.Visited++
		switch {
		case n.Status.Code >= 200 && n.Status.Code < 300:
			s.OK++
		case n.Status.Code >= 400 && n.Status.Code < 500:
			s.ClientErrors++
			s.Broken = append(s.Broken, BrokenLink{URL: n.URL, Parent: parent, Status: n.Status.String()})
		case n.Status.Code >= 500:
			s.ServerErrors++
			s.Broken = append(s.Broken, BrokenLink{URL: n.URL, Parent: parent, Status: n.Status.String()})
		}
	case StatusError:
		s.Visited++
		s.FetchErrors++
		s.Broken = append(s.Broken, BrokenLink{URL: n.URL, Parent: parent, Status: n.Status.String()})
	default:
		s.Unvisited++
	}
}

// HasBroken reports whether any node failed.
func (s *Summary) HasBroken() bool {
	return len(s.Broken) > 0
}

// Counts holds node totals per status kind as stored.
type Counts struct {
	Total     int `json:"total"`
	Unvisited int `json:"unvisited"`
	Pending   int `json:"pending"`
	Success   int `json:"success"`
	Error     int `json:"error"`
}

// Remaining is the number of nodes a resumed crawl could still process.
func (c Counts) Remaining() int {
	return c.Unvisited + c.Pending
}

// Run describes one invocation of the crawler against a store.
type Run struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Processed  int       `json:"processed"`
	Discovered int       `json:"discovered"`
	Outcome    string    `json:"outcome"`
}

// Run outcomes.
const (
	RunOutcomeRunning     = "running"
	RunOutcomeCompleted   = "completed"
	RunOutcomeBudget      = "budget_exhausted"
	RunOutcomeInterrupted = "interrupted"
	RunOutcomeFailed      = "failed"
)
