package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

type Operator string

const (
	EQ   Operator = "="
	NEQ  Operator = "<>"
	GT   Operator = ">"
	GTE  Operator = ">="
	LT   Operator = "<"
	LTE  Operator = "<="
	IN   Operator = "IN"
	LIKE Operator = "LIKE"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator filters on a single column. Field names are interpolated, so
// they must come from code, never from request input.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		switch cond.Operator {
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", cond.Field), cond.Value)
		case LIKE:
			return db.Where(fmt.Sprintf("LOWER(%s) LIKE ?", cond.Field), cond.Value)
		case "":
			return db.Where(fmt.Sprintf("%s = ?", cond.Field), cond.Value)
		default:
			return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
		}
	})
}

// Where passes a raw expression through. Used for OR groups such as search.
func Where(query string, args ...any) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

type QuerySortBy struct {
	SortBy string
	Desc   bool
	Allow  map[string]bool
	// Default applies when SortBy is empty or not allowed.
	Default string
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.SortBy)
		if field == "" || !sort.Allow[field] {
			field = sort.Default
		}
		if field == "" {
			field = "created_at"
		}
		dir := "asc"
		if sort.Desc {
			dir = "desc"
		}
		return db.Order(fmt.Sprintf("%s %s, id %s", field, dir, dir))
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOffset(offset int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if offset <= 0 {
			return db
		}
		return db.Offset(offset)
	})
}

// ForUpdate row-locks the selected rows for the rest of the transaction.
func ForUpdate() QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	})
}
