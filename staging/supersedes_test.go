package staging

import (
	"fmt"
	"strings"
	"time"
)

// Version is the part of a row that decides which capture of a key wins.
type Version struct {
	LastUpdated *time.Time // nil when the source had no usable last-updated value
	RawLoaded   time.Time
}

// Supersedes is the latest-wins rule of the WHEN MATCHED clause in Go: a later last-updated value
// always wins, an earlier one never does, and otherwise the later raw load wins.
func Supersedes(stored, incoming Version) bool {
	if stored.LastUpdated != nil && incoming.LastUpdated != nil {
		if incoming.LastUpdated.After(*stored.LastUpdated) {
			return true
		}
		if incoming.LastUpdated.Before(*stored.LastUpdated) {
			return false
		}
	}
	return incoming.RawLoaded.After(stored.RawLoaded)
}

// Newer orders captures of the same key the way the merge source query does: last-updated
// descending with nulls last, then raw load descending. It reports whether a sorts before b.
func Newer(a, b Version) bool {
	switch {
	case a.LastUpdated != nil && b.LastUpdated == nil:
		return true
	case a.LastUpdated == nil && b.LastUpdated != nil:
		return false
	case a.LastUpdated != nil && b.LastUpdated != nil && !a.LastUpdated.Equal(*b.LastUpdated):
		return a.LastUpdated.After(*b.LastUpdated)
	}
	return a.RawLoaded.After(b.RawLoaded)
}

// sqlBool is SQL three-valued logic.
type sqlBool int

const (
	sqlFalse sqlBool = iota
	sqlTrue
	sqlUnknown
)

func sqlOr(a, b sqlBool) sqlBool {
	switch {
	case a == sqlTrue || b == sqlTrue:
		return sqlTrue
	case a == sqlUnknown || b == sqlUnknown:
		return sqlUnknown
	}
	return sqlFalse
}

func sqlAnd(a, b sqlBool) sqlBool {
	switch {
	case a == sqlFalse || b == sqlFalse:
		return sqlFalse
	case a == sqlUnknown || b == sqlUnknown:
		return sqlUnknown
	}
	return sqlTrue
}

// predicate evaluates the comparisons, IS NULL tests, AND, OR and parentheses used by the
// WHEN MATCHED clause. A nil value in vals is NULL; a column missing from vals panics.
type predicate struct {
	toks []string
	pos  int
	vals map[string]*time.Time
}

func evalPredicate(clause string, vals map[string]*time.Time) sqlBool {
	toks := strings.Fields(strings.NewReplacer("(", " ( ", ")", " ) ").Replace(clause))
	p := &predicate{toks: toks, vals: vals}
	v := p.or()
	if p.pos != len(p.toks) {
		panic(fmt.Sprintf("unparsed tokens %v", p.toks[p.pos:]))
	}
	return v
}

func (p *predicate) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *predicate) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *predicate) value(col string) *time.Time {
	v, ok := p.vals[col]
	if !ok {
		panic(fmt.Sprintf("unexpected column %q", col))
	}
	return v
}

func (p *predicate) or() sqlBool {
	v := p.and()
	for p.peek() == "OR" {
		p.next()
		v = sqlOr(v, p.and())
	}
	return v
}

func (p *predicate) and() sqlBool {
	v := p.atom()
	for p.peek() == "AND" {
		p.next()
		v = sqlAnd(v, p.atom())
	}
	return v
}

func (p *predicate) atom() sqlBool {
	if p.peek() == "(" {
		p.next()
		v := p.or()
		if p.next() != ")" {
			panic("missing )")
		}
		return v
	}
	left := p.value(p.next())
	op := p.next()
	if op == "IS" {
		if p.next() != "NULL" {
			panic("expected IS NULL")
		}
		if left == nil {
			return sqlTrue
		}
		return sqlFalse
	}
	right := p.value(p.next())
	if left == nil || right == nil {
		return sqlUnknown
	}
	var ok bool
	switch op {
	case ">":
		ok = left.After(*right)
	case ">=":
		ok = !left.Before(*right)
	default:
		panic(fmt.Sprintf("unexpected operator %q", op))
	}
	if ok {
		return sqlTrue
	}
	return sqlFalse
}
