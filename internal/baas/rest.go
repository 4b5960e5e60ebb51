package baas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query builds a PostgREST request. Builder methods return a modified copy,
// so a base query can be shared.
type Query struct {
	c       *Client
	table   string
	params  url.Values
	single  bool
	onConfl string
}

// From starts a query against table.
func (c *Client) From(table string) Query {
	return Query{c: c, table: table, params: url.Values{}}
}

func (q Query) clone() Query {
	p := make(url.Values, len(q.params)+1)
	for k, v := range q.params {
		p[k] = append([]string(nil), v...)
	}
	q.params = p
	return q
}

func (q Query) with(key, value string) Query {
	q = q.clone()
	q.params.Add(key, value)
	return q
}

func (q Query) set(key, value string) Query {
	q = q.clone()
	q.params.Set(key, value)
	return q
}

// Select sets the column list, including embedded resources such as
// "*,expense_items(*)".
func (q Query) Select(columns string) Query {
	return q.set("select", columns)
}

func (q Query) Eq(column, value string) Query {
	return q.with(column, "eq."+value)
}

func (q Query) Neq(column, value string) Query {
	return q.with(column, "neq."+value)
}

// In filters column to one of values.
func (q Query) In(column string, values []string) Query {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return q.with(column, "in.("+strings.Join(quoted, ",")+")")
}

// Order appends an ordering term. Repeated calls add tie-breakers.
func (q Query) Order(column string, desc bool) Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	term := column + "." + dir
	if prev := q.params.Get("order"); prev != "" {
		term = prev + "," + term
	}
	return q.set("order", term)
}

func (q Query) Limit(n int) Query {
	return q.set("limit", strconv.Itoa(n))
}

// Single expects exactly one row; zero rows become ports.ErrNotFound.
func (q Query) Single() Query {
	q.single = true
	return q
}

// OnConflict names the unique columns used by Upsert.
func (q Query) OnConflict(columns string) Query {
	q.onConfl = columns
	return q
}

// Values exposes the encoded query parameters.
func (q Query) Values() url.Values {
	return q.params
}

func (q Query) path() string {
	return "/rest/v1/" + url.PathEscape(q.table)
}

func (q Query) headers(prefer string) map[string]string {
	h := map[string]string{}
	if prefer != "" {
		h["Prefer"] = prefer
	}
	if q.single {
		h["Accept"] = "application/vnd.pgrst.object+json"
	}
	return h
}

// Execute runs a GET and decodes the rows into out.
func (q Query) Execute(ctx context.Context, token string, out any) error {
	if err := q.c.do(ctx, request{
		kind:    "rest",
		method:  http.MethodGet,
		path:    q.path(),
		query:   q.params,
		token:   token,
		headers: q.headers(""),
	}, out); err != nil {
		return fmt.Errorf("select %s: %w", q.table, err)
	}
	return nil
}

// Insert creates rows and decodes the stored representation into out.
func (q Query) Insert(ctx context.Context, token string, rows, out any) error {
	if err := q.c.do(ctx, request{
		kind:    "rest",
		method:  http.MethodPost,
		path:    q.path(),
		query:   q.params,
		token:   token,
		body:    rows,
		headers: q.headers("return=representation"),
	}, out); err != nil {
		return fmt.Errorf("insert %s: %w", q.table, err)
	}
	return nil
}

// Upsert inserts or merges rows on the OnConflict columns.
func (q Query) Upsert(ctx context.Context, token string, rows, out any) error {
	params := q.params
	if q.onConfl != "" {
		params = q.set("on_conflict", q.onConfl).params
	}
	if err := q.c.do(ctx, request{
		kind:    "rest",
		method:  http.MethodPost,
		path:    q.path(),
		query:   params,
		token:   token,
		body:    rows,
		headers: q.headers("resolution=merge-duplicates,return=representation"),
	}, out); err != nil {
		return fmt.Errorf("upsert %s: %w", q.table, err)
	}
	return nil
}

// Update patches the rows matched by the filters.
func (q Query) Update(ctx context.Context, token string, patch, out any) error {
	if len(q.filters()) == 0 {
		return fmt.Errorf("update %s: refusing to update without a filter", q.table)
	}
	if err := q.c.do(ctx, request{
		kind:    "rest",
		method:  http.MethodPatch,
		path:    q.path(),
		query:   q.params,
		token:   token,
		body:    patch,
		headers: q.headers("return=representation"),
	}, out); err != nil {
		return fmt.Errorf("update %s: %w", q.table, err)
	}
	return nil
}

// Delete removes the rows matched by the filters.
func (q Query) Delete(ctx context.Context, token string) error {
	if len(q.filters()) == 0 {
		return fmt.Errorf("delete %s: refusing to delete without a filter", q.table)
	}
	if err := q.c.do(ctx, request{
		kind:    "rest",
		method:  http.MethodDelete,
		path:    q.path(),
		query:   q.params,
		token:   token,
		headers: q.headers(""),
	}, nil); err != nil {
		return fmt.Errorf("delete %s: %w", q.table, err)
	}
	return nil
}

func (q Query) filters() []string {
	var out []string
	for k := range q.params {
		switch k {
		case "select", "order", "limit", "on_conflict":
			continue
		}
		out = append(out, k)
	}
	return out
}
