package pgxstore

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/quartzdata/smartbatch/schema"
)

// insertSQL builds one multi-row INSERT. The inserted column set is the
// first row's columns in table declaration order; later rows may omit
// columns, which bind as NULL. Unknown columns anywhere in the batch are
// an error before any SQL runs.
func insertSQL(table *schema.Table, rows []schema.Row) (string, []any, error) {
	for i, row := range rows {
		for name := range row {
			if !table.HasColumn(name) {
				return "", nil, fmt.Errorf("row %d carries unknown column %q for table %q", i, name, table.Name)
			}
		}
	}

	var cols []string
	for _, col := range table.Columns {
		if _, ok := rows[0][col.Name]; ok {
			cols = append(cols, col.Name)
		}
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("row 0 carries no columns of table %q", table.Name)
	}

	quoted := make([]string, len(cols))
	for i, name := range cols {
		quoted[i] = pgx.Identifier{name}.Sanitize()
	}

	groups := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(cols))
	arg := 1
	for i, row := range rows {
		parts := make([]string, len(cols))
		for j, name := range cols {
			parts[j] = fmt.Sprintf("$%d", arg)
			args = append(args, row[name])
			arg++
		}
		groups[i] = "(" + strings.Join(parts, ", ") + ")"
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		pgx.Identifier{table.Name}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(groups, ", "),
	)
	return sql, args, nil
}

// updateSQL builds a single-row UPDATE keyed on the primary-key columns.
// The SET list carries every column present on the item, key columns
// included; re-setting a key to itself is harmless and keeps the matched
// rowcount meaningful.
func updateSQL(table *schema.Table, row schema.Row) (string, []any, error) {
	for name := range row {
		if !table.HasColumn(name) {
			return "", nil, fmt.Errorf("item carries unknown column %q for table %q", name, table.Name)
		}
	}

	var (
		sets []string
		args []any
	)
	arg := 1
	for _, col := range table.Columns {
		v, ok := row[col.Name]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{col.Name}.Sanitize(), arg))
		args = append(args, v)
		arg++
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("item carries no columns of table %q", table.Name)
	}

	conds := make([]string, 0, len(table.KeyColumns()))
	for _, col := range table.Columns {
		if !col.PrimaryKey {
			continue
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{col.Name}.Sanitize(), arg))
		args = append(args, row[col.Name])
		arg++
	}
	if len(conds) == 0 {
		return "", nil, fmt.Errorf("table %q has no primary-key columns", table.Name)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		pgx.Identifier{table.Name}.Sanitize(),
		strings.Join(sets, ", "),
		strings.Join(conds, " AND "),
	)
	return sql, args, nil
}

// selectSQL builds the by-key lookup returning every table column in
// declaration order. Key placeholders follow key-column order.
func selectSQL(table *schema.Table) string {
	cols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = pgx.Identifier{col.Name}.Sanitize()
	}

	var conds []string
	arg := 1
	for _, col := range table.Columns {
		if !col.PrimaryKey {
			continue
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{col.Name}.Sanitize(), arg))
		arg++
	}

	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(cols, ", "),
		pgx.Identifier{table.Name}.Sanitize(),
		strings.Join(conds, " AND "),
	)
}

func countSQL(table *schema.Table) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier{table.Name}.Sanitize())
}

func deleteSQL(table *schema.Table) string {
	return fmt.Sprintf("DELETE FROM %s", pgx.Identifier{table.Name}.Sanitize())
}
