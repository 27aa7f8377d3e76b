package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validIdent(name string) error {
	if !identRe.MatchString(name) {
		return eris.Errorf("engine: invalid identifier %q", name)
	}
	return nil
}

// quoteIdent brackets a validated identifier. Unlike double quotes, a
// bracketed name that matches no column is an error, never a string literal.
func quoteIdent(name string) string {
	return "[" + name + "]"
}

type columnKind int

const (
	kindCol columnKind = iota
	kindCount
	kindCountDistinct
	kindMin
	kindMax
	kindGroupArray
)

// Column is a projected expression in a Select. Build one with Col, Count,
// Min, Max or GroupArray.
type Column struct {
	kind    columnKind
	name    string
	orderBy string
	alias   string
}

// Col projects a column as-is.
func Col(name string) Column { return Column{kind: kindCol, name: name} }

// Count projects the number of rows in the group.
func Count() Column { return Column{kind: kindCount} }

// CountDistinct projects the number of distinct non-null values of a column.
func CountDistinct(name string) Column { return Column{kind: kindCountDistinct, name: name} }

// Min projects the smallest value of a column in the group.
func Min(name string) Column { return Column{kind: kindMin, name: name} }

// Max projects the largest value of a column in the group.
func Max(name string) Column { return Column{kind: kindMax, name: name} }

// GroupArray collects every value of a column in the group into a JSON array
// ordered by orderBy.
func GroupArray(name, orderBy string) Column {
	return Column{kind: kindGroupArray, name: name, orderBy: orderBy}
}

// As names the projected column.
func (c Column) As(alias string) Column {
	c.alias = alias
	return c
}

func (c Column) sql() (string, error) {
	var expr string
	switch c.kind {
	case kindCount:
		expr = "count(*)"
	case kindCol, kindCountDistinct, kindMin, kindMax:
		if err := validIdent(c.name); err != nil {
			return "", err
		}
		expr = quoteIdent(c.name)
		switch c.kind {
		case kindCountDistinct:
			expr = "count(DISTINCT " + expr + ")"
		case kindMin:
			expr = "min(" + expr + ")"
		case kindMax:
			expr = "max(" + expr + ")"
		}
	case kindGroupArray:
		if err := validIdent(c.name); err != nil {
			return "", err
		}
		if err := validIdent(c.orderBy); err != nil {
			return "", err
		}
		expr = "json_group_array(" + quoteIdent(c.name) + " ORDER BY " + quoteIdent(c.orderBy) + ")"
	default:
		return "", eris.Errorf("engine: unknown column kind %d", c.kind)
	}

	if c.alias != "" {
		if err := validIdent(c.alias); err != nil {
			return "", err
		}
		expr += " AS " + quoteIdent(c.alias)
	} else if c.kind != kindCol {
		return "", eris.New("engine: aggregate column needs an alias")
	}
	return expr, nil
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Asc orders by column ascending.
func Asc(col string) Order { return Order{Column: col} }

// Desc orders by column descending.
func Desc(col string) Order { return Order{Column: col, Desc: true} }

// Select is a typed single-relation query. Only validated identifiers reach
// the generated SQL.
type Select struct {
	Columns []Column
	From    string
	GroupBy []string
	OrderBy []Order
	Limit   int
}

// SQL renders the query.
func (s Select) SQL() (string, error) {
	if len(s.Columns) == 0 {
		return "", eris.New("engine: select has no columns")
	}
	if err := validIdent(s.From); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range s.Columns {
		expr, err := c.sql()
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(expr)
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(s.From))

	if len(s.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, g := range s.GroupBy {
			if err := validIdent(g); err != nil {
				return "", err
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteIdent(g))
		}
	}

	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if err := validIdent(o.Column); err != nil {
				return "", err
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteIdent(o.Column))
			if o.Desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
		}
	}

	if s.Limit < 0 {
		return "", eris.Errorf("engine: negative limit %d", s.Limit)
	}
	if s.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.Limit))
	}
	return b.String(), nil
}
