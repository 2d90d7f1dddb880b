// Package policy holds the path-based access rules the docstore guard
// enforces for every read and write.
package policy

import (
	"context"
	"strings"

	"github.com/anonto42/folio/backend/internal/docstore"
)

// Request is one access being decided, with the variables bound by the
// matching pattern.
type Request struct {
	docstore.Access
	Vars   map[string]string
	lookup func(ctx context.Context, path string) (map[string]any, bool)
}

// Get reads another document while deciding, the way security rules can.
// Missing documents report false.
func (r Request) Get(ctx context.Context, path string) (map[string]any, bool) {
	if r.lookup == nil {
		return nil, false
	}
	return r.lookup(ctx, path)
}

// Condition decides one operation.
type Condition func(ctx context.Context, r Request) bool

// Rule grants operations on documents matching Pattern, a slash-separated
// document path whose {name} segments bind variables. List is checked against
// the pattern's collection. A nil condition denies.
type Rule struct {
	Pattern string
	Get     Condition
	List    Condition
	Create  Condition
	Update  Condition
	Delete  Condition
}

// Read sets both Get and List.
func (r Rule) Read(c Condition) Rule {
	r.Get, r.List = c, c
	return r
}

// Write sets Create, Update and Delete.
func (r Rule) Write(c Condition) Rule {
	r.Create, r.Update, r.Delete = c, c, c
	return r
}

type compiled struct {
	rule     Rule
	segments []string
}

// Policy evaluates rules in order; the first pattern that matches decides.
// Accesses no pattern matches are denied.
type Policy struct {
	rules []compiled
	store docstore.Store
}

// New compiles rules. store serves Request.Get and must be the unguarded store.
func New(store docstore.Store, rules ...Rule) *Policy {
	p := &Policy{store: store}
	for _, r := range rules {
		p.rules = append(p.rules, compiled{rule: r, segments: strings.Split(r.Pattern, "/")})
	}
	return p
}

// Allow implements docstore.Rules.
func (p *Policy) Allow(ctx context.Context, a docstore.Access) bool {
	segments := strings.Split(a.Path, "/")
	list := a.Operation == "list"
	for _, c := range p.rules {
		pattern := c.segments
		if list {
			pattern = pattern[:len(pattern)-1]
		}
		vars, ok := match(pattern, segments)
		if !ok {
			continue
		}
		cond := c.rule.condition(a.Operation)
		if cond == nil {
			return false
		}
		return cond(ctx, Request{Access: a, Vars: vars, lookup: p.get})
	}
	return false
}

func (r Rule) condition(op string) Condition {
	switch op {
	case "get":
		return r.Get
	case "list":
		return r.List
	case "create":
		return r.Create
	case "update":
		return r.Update
	case "delete":
		return r.Delete
	}
	return nil
}

func (p *Policy) get(ctx context.Context, path string) (map[string]any, bool) {
	if p.store == nil {
		return nil, false
	}
	doc, err := p.store.Get(ctx, path)
	if err != nil || !doc.Exists {
		return nil, false
	}
	return doc.Data, true
}

func match(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	vars := make(map[string]string)
	for i, p := range pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			vars[p[1:len(p)-1]] = segments[i]
			continue
		}
		if p != segments[i] {
			return nil, false
		}
	}
	return vars, true
}
