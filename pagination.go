package ormkit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/uptrace/bun"
)

// PageInfo contains pagination metadata.
type PageInfo struct {
	HasNextPage     bool   `json:"has_next_page"`
	HasPreviousPage bool   `json:"has_previous_page"`
	StartCursor     string `json:"start_cursor,omitempty"`
	EndCursor       string `json:"end_cursor,omitempty"`
	TotalCount      int    `json:"total_count,omitempty"`
}

// OffsetPage represents an offset-based paginated result.
type OffsetPage[T any] struct {
	Items      []T      `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalItems int      `json:"total_items"`
	TotalPages int      `json:"total_pages"`
	PageInfo   PageInfo `json:"page_info"`
}

// CursorPage represents a cursor-based paginated result.
type CursorPage[T any] struct {
	Items    []T      `json:"items"`
	PageInfo PageInfo `json:"page_info"`
}

// DefaultPageSize is the default number of items per page.
const DefaultPageSize = 20

// MaxPageSize is the maximum allowed page size.
const MaxPageSize = 100

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Paginate applies offset-based pagination to a bun query.
//
// Usage:
//
//	var users []User
//	db.Bun().NewSelect().Model(&users).Apply(ormkit.Paginate(2, 10)).Scan(ctx)
func Paginate(page, pageSize int) func(*bun.SelectQuery) *bun.SelectQuery {
	page, pageSize = clampPage(page, pageSize)
	offset := (page - 1) * pageSize

	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(pageSize).Offset(offset)
	}
}

// PaginateWithCount returns one page of the records matching where, ordered
// by primary key, with the total count.
//
// Usage:
//
//	page, err := ormkit.PaginateWithCount[User](ctx, db, 1, 10, "active = @active", ormkit.Params{"active": true})
func PaginateWithCount[T any](ctx context.Context, src Source, page, pageSize int, where string, args ...any) (*OffsetPage[T], error) {
	page, pageSize = clampPage(page, pageSize)
	offset := (page - 1) * pageSize

	c, def, err := definitionOf[T](src)
	if err != nil {
		return nil, err
	}

	// Get total count
	totalCount, err := Count[T](ctx, c, where, args...)
	if err != nil {
		return nil, err
	}

	// Get items
	query := selectSQL(c.provider, def, where) +
		" ORDER BY " + c.provider.QuoteColumn(def.PrimaryKey()) +
		" " + c.provider.SQLLimit(&offset, &pageSize)
	items, err := List[T](ctx, c, query, args...)
	if err != nil {
		return nil, err
	}

	total := int(totalCount)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	return &OffsetPage[T]{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
		PageInfo: PageInfo{
			HasNextPage:     page < totalPages,
			HasPreviousPage: page > 1,
			TotalCount:      total,
		},
	}, nil
}

// Cursor represents a pagination cursor.
type Cursor struct {
	ID        string `json:"id"`
	SortValue string `json:"sv,omitempty"`
}

// EncodeCursor encodes a cursor to a base64 string.
func EncodeCursor(id string, sortValue string) string {
	c := Cursor{ID: id, SortValue: sortValue}
	data, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes a base64 cursor string.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}

	return &c, nil
}

const cursorParam = "ormkit_cursor"

// CursorPaginate returns up to limit records after the cursor in primary
// key order. The EndCursor of the result continues the listing.
//
// Usage:
//
//	page, err := ormkit.CursorPaginate[User](ctx, db, after, 10, "")
func CursorPaginate[T any](ctx context.Context, src Source, after string, limit int, where string, args ...any) (*CursorPage[T], error) {
	_, limit = clampPage(1, limit)

	c, def, err := definitionOf[T](src)
	if err != nil {
		return nil, err
	}
	p := c.provider
	pk := def.PrimaryKey()

	cur, err := DecodeCursor(after)
	if err != nil {
		return nil, &Error{Code: CodeMapping, Op: "CursorPaginate", Table: def.TableName, Message: err.Error(), Cause: err}
	}
	if cur != nil {
		key, err := p.FromDB(pk, cur.ID)
		if err != nil {
			return nil, &Error{Code: CodeMapping, Op: "CursorPaginate", Table: def.TableName, Message: err.Error(), Cause: err}
		}
		if key, err = p.ToDB(pk, key); err != nil {
			return nil, &Error{Code: CodeMapping, Op: "CursorPaginate", Table: def.TableName, Message: err.Error(), Cause: err}
		}
		var ph string
		if named, ok := singleParams(args); ok {
			named = maps.Clone(named)
			named[cursorParam] = key
			args = []any{named}
			ph = p.ParamName(cursorParam)
		} else {
			args = append(append([]any(nil), args...), key)
			ph = p.Placeholder(len(args))
		}
		cond := p.QuoteColumn(pk) + " > " + ph
		if where != "" {
			where = "(" + where + ") AND " + cond
		} else {
			where = cond
		}
	}

	fetch := limit + 1
	query := selectSQL(p, def, where) + " ORDER BY " + p.QuoteColumn(pk) + " " + p.SQLLimit(nil, &fetch)
	items, err := List[T](ctx, c, query, args...)
	if err != nil {
		return nil, err
	}

	info := PageInfo{HasPreviousPage: cur != nil}
	if len(items) > limit {
		items = items[:limit]
		info.HasNextPage = true
	}
	if len(items) > 0 {
		info.StartCursor = EncodeCursor(fmt.Sprint(pk.GetValue(&items[0])), "")
		info.EndCursor = EncodeCursor(fmt.Sprint(pk.GetValue(&items[len(items)-1])), "")
	}
	return &CursorPage[T]{Items: items, PageInfo: info}, nil
}

func singleParams(args []any) (Params, bool) {
	if len(args) != 1 {
		return nil, false
	}
	p, ok := args[0].(Params)
	return p, ok
}
