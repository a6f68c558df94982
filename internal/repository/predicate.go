package repository

import (
	"strconv"
	"strings"

	"github.com/shiva/fleetops/internal/model"
)

// predicate composes a parameterized WHERE clause. Clauses use "?" for
// their arguments; placeholders are numbered when the clause is added.
type predicate struct {
	clauses []string
	args    []any
}

// and appends one clause. Each "?" consumes one argument in order.
func (p *predicate) and(clause string, args ...any) *predicate {
	var b strings.Builder
	next := 0
	for _, r := range clause {
		if r == '?' && next < len(args) {
			p.args = append(p.args, args[next])
			next++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(len(p.args)))
			continue
		}
		b.WriteRune(r)
	}
	p.clauses = append(p.clauses, b.String())
	return p
}

// where renders "WHERE a AND b", or "" when empty.
func (p *predicate) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

// tripPredicate translates a TripFilter into SQL. The tenant clause is
// always present.
func tripPredicate(f model.TripFilter) *predicate {
	p := &predicate{}
	p.and("t.tenant_id = ?", f.TenantID)

	if f.DriverID != nil {
		p.and("t.driver_id = ?", *f.DriverID)
	}
	if f.CustomerID != nil {
		p.and("t.customer_id = ?", *f.CustomerID)
	}
	if len(f.CustomerIDs) > 0 {
		p.and("t.customer_id = ANY(?)", f.CustomerIDs)
	}
	if f.Date != nil {
		p.and("t.trip_date = ?", *f.Date)
	}
	if f.From != nil {
		p.and("t.trip_date >= ?", *f.From)
	}
	if f.To != nil {
		p.and("t.trip_date <= ?", *f.To)
	}
	if f.ExcludeID != nil {
		p.and("t.id <> ?", *f.ExcludeID)
	}
	if f.TripType != nil {
		p.and("t.trip_type = ?", string(*f.TripType))
	}
	if f.Status != nil {
		p.and("t.status = ?", string(*f.Status))
	}
	if f.ExcludeCancelled {
		p.and("t.status <> 'cancelled'")
	}
	if f.UnassignedOnly {
		p.and("t.driver_id IS NULL")
	}
	return p
}
