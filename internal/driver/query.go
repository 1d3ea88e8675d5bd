package driver

import (
	"fmt"
	"regexp"
	"strings"
)

type stepKind int

const (
	stepFind stepKind = iota
	stepText
	stepHasText
	stepNth
	stepLast
	stepParent
	stepFocused
)

type step struct {
	kind     stepKind
	selector string
	text     string
	re       *regexp.Regexp
	index    int
}

// Query is an immutable element lookup chain. Every method returns a new
// Query, so partial queries can be shared between sequences. Resolution is
// first-match unless the chain ends with Nth or Last.
type Query struct {
	steps []step
}

// Get starts a query with a CSS selector.
func Get(selector string) Query {
	return Query{}.with(step{kind: stepFind, selector: selector})
}

// Text starts a query at the smallest element containing text.
func Text(text string) Query {
	return Query{}.with(step{kind: stepText, text: text})
}

// TextMatching starts a query at the smallest element whose text matches re.
func TextMatching(re *regexp.Regexp) Query {
	return Query{}.with(step{kind: stepText, re: re})
}

// Focused addresses the element that currently has keyboard focus.
func Focused() Query {
	return Query{}.with(step{kind: stepFocused})
}

// Find narrows to descendants matching selector.
func (q Query) Find(selector string) Query {
	return q.with(step{kind: stepFind, selector: selector})
}

// Text narrows to the smallest descendant containing text.
func (q Query) Text(text string) Query {
	return q.with(step{kind: stepText, text: text})
}

// HasText keeps only matched elements whose text contains text.
func (q Query) HasText(text string) Query {
	return q.with(step{kind: stepHasText, text: text})
}

// HasTextMatching keeps only matched elements whose text matches re.
func (q Query) HasTextMatching(re *regexp.Regexp) Query {
	return q.with(step{kind: stepHasText, re: re})
}

// Nth picks the zero-based index among matched elements.
func (q Query) Nth(index int) Query {
	return q.with(step{kind: stepNth, index: index})
}

// Last picks the last matched element.
func (q Query) Last() Query {
	return q.with(step{kind: stepLast})
}

// Parent moves to the parent element.
func (q Query) Parent() Query {
	return q.with(step{kind: stepParent})
}

// IsZero reports whether the query has no steps.
func (q Query) IsZero() bool {
	return len(q.steps) == 0
}

// IsFocused reports whether the query addresses the focused element only.
func (q Query) IsFocused() bool {
	return len(q.steps) == 1 && q.steps[0].kind == stepFocused
}

// Validate rejects chains that cannot be resolved.
func (q Query) Validate() error {
	if q.IsZero() {
		return fmt.Errorf("empty query")
	}
	for i, s := range q.steps {
		switch s.kind {
		case stepFind:
			if strings.TrimSpace(s.selector) == "" {
				return fmt.Errorf("step %d: empty selector", i)
			}
		case stepText, stepHasText:
			if s.re == nil && s.text == "" {
				return fmt.Errorf("step %d: empty text", i)
			}
			if s.kind == stepHasText && i == 0 {
				return fmt.Errorf("step %d: hasText needs a preceding selector", i)
			}
		case stepNth:
			if s.index < 0 {
				return fmt.Errorf("step %d: negative index %d", i, s.index)
			}
			if i == 0 {
				return fmt.Errorf("step %d: nth needs a preceding selector", i)
			}
		case stepLast, stepParent:
			if i == 0 {
				return fmt.Errorf("step %d: needs a preceding selector", i)
			}
		case stepFocused:
			if i != 0 {
				return fmt.Errorf("step %d: focused must start a query", i)
			}
		}
	}
	return nil
}

// String renders the chain for logs, e.g. get(".btn").hasText("Create").
func (q Query) String() string {
	if q.IsZero() {
		return "<empty>"
	}
	var b strings.Builder
	for i, s := range q.steps {
		if i > 0 {
			b.WriteByte('.')
		}
		switch s.kind {
		case stepFind:
			if i == 0 {
				fmt.Fprintf(&b, "get(%q)", s.selector)
			} else {
				fmt.Fprintf(&b, "find(%q)", s.selector)
			}
		case stepText:
			fmt.Fprintf(&b, "text(%s)", textArg(s))
		case stepHasText:
			fmt.Fprintf(&b, "hasText(%s)", textArg(s))
		case stepNth:
			fmt.Fprintf(&b, "nth(%d)", s.index)
		case stepLast:
			b.WriteString("last()")
		case stepParent:
			b.WriteString("parent()")
		case stepFocused:
			b.WriteString("focused()")
		}
	}
	return b.String()
}

func textArg(s step) string {
	if s.re != nil {
		return "/" + s.re.String() + "/"
	}
	return fmt.Sprintf("%q", s.text)
}

func (q Query) with(s step) Query {
	steps := make([]step, len(q.steps), len(q.steps)+1)
	copy(steps, q.steps)
	return Query{steps: append(steps, s)}
}

// picksOne reports whether the final step already selects a single element.
func (q Query) picksOne() bool {
	if q.IsZero() {
		return false
	}
	switch q.steps[len(q.steps)-1].kind {
	case stepNth, stepLast, stepFocused:
		return true
	}
	return false
}
