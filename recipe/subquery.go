package recipe

import "github.com/juiceinc/recipe/sql"

// rawSource is a sql.Selectable whose Name() is already driver-final
// SQL text — a subquery or join expression an extension built directly
// — rather than a bare table name. Its Columns() is never consulted:
// catalog.Build runs once, before any Recipe wraps a source this way.
type rawSource struct{ text string }

func (s rawSource) Name() string                    { return s.text }
func (s rawSource) Columns() []sql.SelectableColumn { return nil }

// RawSource wraps pre-rendered SQL text (a subquery, a join expression)
// as a Recipe's select_from, for extensions that rewrite the FROM
// clause directly (SummarizeOver, BlendRecipe, CompareRecipe).
func RawSource(sqlText string) sql.Selectable { return rawSource{text: sqlText} }
