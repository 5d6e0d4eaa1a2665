package transform

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

func ident(name string) string { return pgx.Identifier{name}.Sanitize() }

func quoteLiteral(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

// buildStatements returns the statements that rebuild m from scratch.
func buildStatements(m Model) []string {
	name := ident(m.Name)
	if m.Materialization == MaterializeView {
		return []string{
			fmt.Sprintf("DROP VIEW IF EXISTS %s CASCADE", name),
			fmt.Sprintf("CREATE VIEW %s AS\n%s", name, m.SQL),
		}
	}
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", name),
		fmt.Sprintf("CREATE TABLE %s AS\n%s", name, m.SQL),
	}
}

// incrementalStatements merge m into its existing table by UniqueKey: rows
// whose content changed or whose key left the source are deleted, then every
// key not present is inserted. The table was created from the same SQL, so
// row comparison lines up column by column.
func incrementalStatements(m Model) []string {
	rel, key := ident(m.Name), ident(m.UniqueKey)
	return []string{
		fmt.Sprintf(`DELETE FROM %[1]s t
USING (
%[2]s
) src
WHERE t.%[3]s = src.%[3]s AND ROW(t.*) IS DISTINCT FROM ROW(src.*)`, rel, m.SQL, key),
		fmt.Sprintf(`DELETE FROM %[1]s t
WHERE NOT EXISTS (SELECT 1 FROM (
%[2]s
) src WHERE src.%[3]s = t.%[3]s)`, rel, m.SQL, key),
		fmt.Sprintf(`INSERT INTO %[1]s
SELECT src.* FROM (
%[2]s
) src
WHERE NOT EXISTS (SELECT 1 FROM %[1]s t WHERE t.%[3]s = src.%[3]s)`, rel, m.SQL, key),
	}
}

// testQuery counts the rows of model violating t.
func testQuery(model string, t SchemaTest) string {
	rel := ident(model)
	col := ident(t.Column)
	switch t.Kind {
	case TestNotNull:
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", rel, col)
	case TestUnique:
		return fmt.Sprintf(
			"SELECT COUNT(*) FROM (SELECT %[2]s FROM %[1]s WHERE %[2]s IS NOT NULL GROUP BY %[2]s HAVING COUNT(*) > 1) dup",
			rel, col)
	case TestAcceptedValues:
		vals := make([]string, len(t.Values))
		for i, v := range t.Values {
			vals[i] = quoteLiteral(v)
		}
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s::text NOT IN (%s)",
			rel, col, col, strings.Join(vals, ", "))
	case TestRelationships:
		return fmt.Sprintf(
			"SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE c.%s IS NOT NULL AND p.%s IS NULL",
			rel, ident(t.To), col, ident(t.Field), col, ident(t.Field))
	}
	return ""
}
