package repo

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of neo4j.ResultWithContext the repositories use.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Session is the part of neo4j.SessionWithContext the repositories use.
type Session interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// SessionFactory opens a Session.
type SessionFactory func(ctx context.Context) Session

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a sessionAdapter) Close(ctx context.Context) error { return a.sess.Close(ctx) }

// DriverSessions returns a SessionFactory over driver. An empty database
// uses the server default.
func DriverSessions(driver neo4j.DriverWithContext, database string) SessionFactory {
	return func(ctx context.Context) Session {
		return sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})}
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Neo4jRepo reads nodes with one label.
type Neo4jRepo[T any, ID comparable] struct {
	sessions   SessionFactory
	label      string
	idKey      string
	fromRecord func(*neo4j.Record) (T, error)
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// NewNeo4jRepo creates a repository. fromRecord decodes a record whose
// node is bound to "n".
func NewNeo4jRepo[T any, ID comparable](
	sessions SessionFactory,
	label string,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		sessions:   sessions,
		label:      label,
		idKey:      "id",
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ Reader[any, string] = (*Neo4jRepo[any, string])(nil)

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.sessions(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, fmt.Errorf("repo: get %s: %w", r.label, err)
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return zero, fmt.Errorf("repo: get %s: %w", r.label, err)
		}
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return r.fromRecord(res.Record())
}

// listCypher builds the List query. Filter keys are sorted so the
// statement is stable.
func (r *Neo4jRepo[T, ID]) listCypher(opts ListOpts) (string, map[string]any, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	params := map[string]any{"offset": opts.Offset, "limit": limit}

	keys := make([]string, 0, len(opts.Filter))
	for k := range opts.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", r.label)
	for i, k := range keys {
		if !identRe.MatchString(k) {
			return "", nil, fmt.Errorf("repo: invalid filter key %q", k)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "n.%s = $f_%s", k, k)
		params["f_"+k] = opts.Filter[k]
	}
	b.WriteString(" RETURN n")
	if opts.OrderBy != "" {
		if !identRe.MatchString(opts.OrderBy) {
			return "", nil, fmt.Errorf("repo: invalid order key %q", opts.OrderBy)
		}
		fmt.Fprintf(&b, " ORDER BY n.%s", opts.OrderBy)
		if opts.Desc {
			b.WriteString(" DESC")
		}
	}
	b.WriteString(" SKIP $offset LIMIT $limit")
	return b.String(), params, nil
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	cypher, params, err := r.listCypher(opts)
	if err != nil {
		return nil, err
	}
	sess := r.sessions(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("repo: list %s: %w", r.label, err)
	}
	items := []T{}
	for res.Next(ctx) {
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("repo: list %s: %w", r.label, err)
	}
	return items, nil
}
