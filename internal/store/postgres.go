package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"natours/internal/logger"
	"natours/internal/model"
	"natours/internal/query"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of *pgxpool.Pool the Postgres backend uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres stores each collection as a table of jsonb documents:
//
//	CREATE TABLE tours (id text PRIMARY KEY, seq bigserial, doc jsonb NOT NULL)
//
// Unique fields are backed by expression indexes named <table>_<field>_uniq.
type Postgres struct {
	db Querier
}

func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Collection(m *model.Model) Collection {
	return &postgresCollection{db: s.db, model: m, scope: query.ScopeFilter(m)}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type postgresCollection struct {
	db    Querier
	model *model.Model
	scope query.Filter
}

func (c *postgresCollection) Find(ctx context.Context, in query.Intent) ([]model.Document, error) {
	sqlStr, args, err := c.selectQuery(in)
	if err != nil {
		return nil, err
	}
	logger.Debug("sql", map[string]any{"collection": c.model.Collection, "sql": sqlStr, "args": args})

	docs, err := c.queryDocs(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		docs[i] = in.Projection.Apply(d)
	}
	return docs, nil
}

func (c *postgresCollection) Count(ctx context.Context, f query.Filter) (int64, error) {
	where, err := c.where(f)
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := psql.Select("count(*)").From(c.model.Collection).Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.db.QueryRow(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.model.Collection, err)
	}
	return n, nil
}

func (c *postgresCollection) FindByID(ctx context.Context, id string) (model.Document, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	return c.FindOne(ctx, query.Filter{model.IDField: {query.Eq(id)}})
}

func (c *postgresCollection) FindOne(ctx context.Context, f query.Filter) (model.Document, error) {
	sqlStr, args, err := c.selectQuery(query.Intent{Filter: f, Limit: 1})
	if err != nil {
		return nil, err
	}
	docs, err := c.queryDocs(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (c *postgresCollection) Insert(ctx context.Context, doc model.Document) (model.Document, error) {
	id := uuid.NewString()
	body := clone(doc)
	delete(body, model.IDField)
	body[model.VersionField] = int64(0)
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s document: %w", c.model.Collection, err)
	}

	sqlStr, args, err := psql.Insert(c.model.Collection).
		Columns("id", "doc").
		Values(id, string(raw)).
		Suffix("RETURNING id, doc").
		ToSql()
	if err != nil {
		return nil, err
	}
	out, err := c.scanOne(c.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return nil, c.translate(err, body)
	}
	return out, nil
}

func (c *postgresCollection) UpdateByID(ctx context.Context, id string, patch model.Document) (model.Document, error) {
	sqlStr, args, err := c.updateQuery(id, patch)
	if err != nil {
		return nil, err
	}
	out, err := c.scanOne(c.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return nil, c.translate(err, patch)
	}
	return out, nil
}

func (c *postgresCollection) DeleteByID(ctx context.Context, id string) (model.Document, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	where, err := c.where(query.Filter{model.IDField: {query.Eq(id)}})
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := psql.Delete(c.model.Collection).Where(where).Suffix("RETURNING id, doc").ToSql()
	if err != nil {
		return nil, err
	}
	out, err := c.scanOne(c.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return nil, c.translate(err, nil)
	}
	return out, nil
}

func (c *postgresCollection) DeleteMany(ctx context.Context, f query.Filter) (int64, error) {
	where, err := c.where(f)
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := psql.Delete(c.model.Collection).Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := c.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", c.model.Collection, err)
	}
	return tag.RowsAffected(), nil
}

func (c *postgresCollection) selectQuery(in query.Intent) (string, []any, error) {
	where, err := c.where(in.Filter)
	if err != nil {
		return "", nil, err
	}
	sb := psql.Select("id", "doc").From(c.model.Collection).Where(where)
	for _, sf := range in.Sort {
		expr := c.sortExpr(sf.Field)
		if sf.Desc {
			sb = sb.OrderBy(expr + " DESC NULLS LAST")
		} else {
			sb = sb.OrderBy(expr + " ASC NULLS FIRST")
		}
	}
	sb = sb.OrderBy("seq ASC")
	if in.Limit > 0 {
		sb = sb.Limit(uint64(in.Limit))
	}
	if in.Skip > 0 {
		sb = sb.Offset(uint64(in.Skip))
	}
	return sb.ToSql()
}

func (c *postgresCollection) updateQuery(id string, patch model.Document) (string, []any, error) {
	if err := checkUUID(id); err != nil {
		return "", nil, err
	}
	where, err := c.where(query.Filter{model.IDField: {query.Eq(id)}})
	if err != nil {
		return "", nil, err
	}
	set, unset := splitPatch(patch)
	raw, err := json.Marshal(set)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s patch: %w", c.model.Collection, err)
	}
	if unset == nil {
		unset = []string{}
	}
	return psql.Update(c.model.Collection).
		Set("doc", sq.Expr("(doc || ?::jsonb) - ?::text[]", string(raw), unset)).
		Where(where).
		Suffix("RETURNING id, doc").
		ToSql()
}

// where combines the model scope with f into one AND clause.
func (c *postgresCollection) where(f query.Filter) (sq.And, error) {
	full := c.scope.And(f)
	and := sq.And{}
	for _, field := range full.Fields() {
		for _, cond := range full[field] {
			expr, err := c.condition(field, cond)
			if err != nil {
				return nil, err
			}
			and = append(and, expr)
		}
	}
	return and, nil
}

var sqlOps = map[query.Op]string{
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

func (c *postgresCollection) condition(field string, cond query.Condition) (sq.Sqlizer, error) {
	if !c.model.HasField(field) {
		return nil, fmt.Errorf("%s: unknown field %q", c.model.Collection, field)
	}
	if c.model.FieldType(field) == model.TypeArray {
		return c.arrayCondition(field, cond)
	}

	expr := c.scalarExpr(field)
	switch cond.Op {
	case query.OpEq:
		if cond.Value == nil {
			return sq.Expr(c.isNull(field)), nil
		}
		return sq.Eq{expr: cond.Value}, nil
	case query.OpNe:
		if cond.Value == nil {
			return sq.Expr("NOT " + c.isNull(field)), nil
		}
		return sq.Expr(expr+" IS DISTINCT FROM ?", cond.Value), nil
	case query.OpIn:
		vs, _ := cond.Value.([]any)
		if len(vs) == 0 {
			return sq.Expr("false"), nil
		}
		return sq.Eq{expr: vs}, nil
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		return sq.Expr(fmt.Sprintf("%s %s ?", expr, sqlOps[cond.Op]), cond.Value), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", cond.Op)
}

// arrayCondition matches when any element satisfies cond; OpNe when none
// equals the value.
func (c *postgresCollection) arrayCondition(field string, cond query.Condition) (sq.Sqlizer, error) {
	path := fmt.Sprintf("doc->'%s'", field)
	contains := func(v any) (sq.Sqlizer, error) {
		raw, err := json.Marshal([]any{v})
		if err != nil {
			return nil, err
		}
		return sq.Expr("COALESCE("+path+" @> ?::jsonb, false)", string(raw)), nil
	}

	switch cond.Op {
	case query.OpEq, query.OpNe:
		expr, err := contains(cond.Value)
		if err != nil {
			return nil, err
		}
		if cond.Op == query.OpNe {
			return sq.Expr("NOT ?", expr), nil
		}
		return expr, nil
	case query.OpIn:
		vs, _ := cond.Value.([]any)
		or := sq.Or{}
		for _, v := range vs {
			expr, err := contains(v)
			if err != nil {
				return nil, err
			}
			or = append(or, expr)
		}
		if len(or) == 0 {
			return sq.Expr("false"), nil
		}
		return or, nil
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		elem := castExpr("e.v", c.model.Fields[field].Items)
		return sq.Expr(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(CASE WHEN jsonb_typeof(%s) = 'array' THEN %s ELSE '[]'::jsonb END) AS e(v) WHERE %s %s ?)",
			path, path, elem, sqlOps[cond.Op]), cond.Value), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", cond.Op)
}

func (c *postgresCollection) scalarExpr(field string) string {
	if field == model.IDField {
		return "id"
	}
	return castExpr(fmt.Sprintf("(doc->>'%s')", field), c.model.FieldType(field))
}

func (c *postgresCollection) sortExpr(field string) string {
	if c.model.FieldType(field) == model.TypeArray || c.model.FieldType(field) == model.TypeObject {
		return fmt.Sprintf("doc->'%s'", field)
	}
	return c.scalarExpr(field)
}

func (c *postgresCollection) isNull(field string) string {
	if field == model.IDField {
		return "(id IS NULL)"
	}
	return fmt.Sprintf("(doc->'%s' IS NULL OR doc->'%s' = 'null'::jsonb)", field, field)
}

func castExpr(expr, typ string) string {
	switch typ {
	case model.TypeNumber, model.TypeInteger:
		return expr + "::float8"
	case model.TypeBoolean:
		return expr + "::boolean"
	case model.TypeDate:
		return expr + "::timestamptz"
	}
	return expr
}

func (c *postgresCollection) queryDocs(ctx context.Context, sqlStr string, args ...any) ([]model.Document, error) {
	rows, err := c.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.model.Collection, err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		d, err := c.scanOne(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", c.model.Collection, err)
	}
	return docs, nil
}

func (c *postgresCollection) scanOne(row pgx.Row) (model.Document, error) {
	var id string
	var raw []byte
	if err := row.Scan(&id, &raw); err != nil {
		return nil, err
	}
	doc := model.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s document %s: %w", c.model.Collection, id, err)
	}
	doc[model.IDField] = id
	if v, ok := doc[model.VersionField].(float64); ok {
		doc[model.VersionField] = int64(v)
	}
	return c.model.Hydrate(doc), nil
}

// translate maps driver errors onto the store's error values.
func (c *postgresCollection) translate(err error, doc model.Document) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		field := strings.TrimSuffix(strings.TrimPrefix(pgErr.ConstraintName, c.model.Collection+"_"), "_uniq")
		return &DuplicateKeyError{Field: field, Value: doc[field]}
	}
	return fmt.Errorf("%s: %w", c.model.Collection, err)
}
