package model

import (
	"fmt"
	"time"
)

// StatusKind is the lifecycle stage of a crawl node.
type StatusKind string

const (
	// StatusUnvisited means the node was discovered but never dispatched.
	StatusUnvisited StatusKind = "unvisited"

	// StatusPending means a fetch was dispatched but its result was not
	// committed. A resumed crawl picks these nodes up again.
	StatusPending StatusKind = "pending"

	// StatusSuccess means the server answered. Code holds the HTTP status,
	// which may itself be an error status such as 404.
	StatusSuccess StatusKind = "success"

	// StatusError means the fetch failed before any HTTP status was received.
	StatusError StatusKind = "error"
)

// Status is the crawl status of a node.
//
// Design decision: We keep the HTTP code and the failure message next to the
// kind rather than using an interface hierarchy because:
//  1. It maps one-to-one onto three nullable table columns
//  2. Callers switch on Kind and never need type assertions
type Status struct {
	// Kind is the lifecycle stage.
	Kind StatusKind

	// Code is the HTTP status code. Only meaningful for StatusSuccess.
	Code int

	// Message describes the failure. Only meaningful for StatusError.
	Message string
}

// Unvisited returns the status of a freshly discovered node.
func Unvisited() Status {
	return Status{Kind: StatusUnvisited}
}

// Pending returns the status of a node whose fetch is in flight.
func Pending() Status {
	return Status{Kind: StatusPending}
}

// Success returns the status of a node that received an HTTP response.
func Success(code int) Status {
	return Status{Kind: StatusSuccess, Code: code}
}

// Failure returns the status of a node whose fetch failed.
func Failure(message string) Status {
	return Status{Kind: StatusError, Message: message}
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s.Kind == StatusSuccess || s.Kind == StatusError
}

// IsOK reports whether the node answered with 200 OK.
func (s Status) IsOK() bool {
	return s.Kind == StatusSuccess && s.Code == 200
}

// String returns a short human-readable form such as "200", "error: timeout"
// or "unvisited".
func (s Status) String() string {
	switch s.Kind {
	case StatusSuccess:
		return fmt.Sprintf("%d", s.Code)
	case StatusError:
		return "error: " + s.Message
	case StatusPending:
		return string(StatusPending)
	default:
		return string(StatusUnvisited)
	}
}

// Node is one canonical URL's crawl record.
type Node struct {
	// URL is the canonical URL and the node's identity.
	URL string

	// Status is the crawl status.
	Status Status

	// RedirectedFrom is the canonical URL whose fetch redirected here.
	// Empty when the node was reached directly.
	RedirectedFrom string

	// Parent is the canonical URL of the page that first linked here.
	// Empty only for the root.
	Parent string

	// Depth is the number of link hops from the root, fixed at discovery.
	Depth int

	// MatchResult is set when the search text was found on this page.
	MatchResult string

	// Seq orders nodes by discovery time.
	Seq int64

	// DiscoveredAt is when the node was first inserted.
	DiscoveredAt time.Time

	// FetchedAt is when the terminal status was recorded. Zero until then.
	FetchedAt time.Time
}

// IsRoot reports whether the node is the crawl root.
func (n *Node) IsRoot() bool {
	return n.Parent == ""
}

// IsRedirectTarget reports whether the node's content was reached through
// an HTTP redirect from another address.
func (n *Node) IsRedirectTarget() bool {
	return n.RedirectedFrom != ""
}

// FrontierItem is one entry of the crawl work queue.
type FrontierItem struct {
	URL    string
	Depth  int
	Parent string
}

// Result is the outcome of one fetch, ready to be recorded.
type Result struct {
	// URL is the canonical URL that was dispatched.
	URL string

	// FinalURL is the canonical URL after redirects. Equal to URL when the
	// server did not redirect.
	FinalURL string

	// Status is the terminal status to record.
	Status Status

	// MatchResult is the search marker, empty when nothing matched.
	MatchResult string
}

// Redirected reports whether the fetch ended at a different address.
func (r Result) Redirected() bool {
	return r.FinalURL != "" && r.FinalURL != r.URL
}

// PageResult is everything learned from one processed URL. It is committed
// atomically so a crash loses at most the page in flight.
type PageResult struct {
	Result

	// Links are canonical, already filtered candidate URLs found on the page.
	// They are inserted one level below the node the result is recorded under.
	Links []string
}

// CommitResult reports what a commit changed.
type CommitResult struct {
	// FinalURL is the identity the result was recorded under.
	FinalURL string

	// Applied is false when the result was dropped because the final node
	// already had a terminal status.
	Applied bool

	// Added lists discoveries that were new to the seen-set.
	Added []FrontierItem
}
