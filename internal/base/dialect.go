package base

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect renders the loader's statements for one database family.
type Dialect struct {
	Name        string
	Driver      string
	DefaultPort string

	// Savepoints wraps each record in a savepoint. Postgres aborts the whole
	// transaction on a failed statement, MySQL does not.
	Savepoints bool

	UpsertCategory   string
	UpsertPost       string
	SelectCategories string
	CountCategories  string
	CountPosts       string
}

var (
	categoryColumns = []string{"name", "slug", "description", "createdAt"}
	postColumns     = []string{"title", "slug", "excerpt", "content", "categoryId", "published", "publishedAt", "createdAt", "updatedAt"}
)

var (
	MySQL = newDialect("mysql", "mysql", "3306", false,
		mysqlQuote,
		func(int) string { return "?" },
		func(_ string, update string) string {
			return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = VALUES(%s)", mysqlQuote(update), mysqlQuote(update))
		},
	)

	Postgres = newDialect("postgres", "pgx", "5432", true,
		pq.QuoteIdentifier,
		func(n int) string { return fmt.Sprintf("$%d", n) },
		func(key string, update string) string {
			return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s",
				pq.QuoteIdentifier(key), pq.QuoteIdentifier(update), pq.QuoteIdentifier(update))
		},
	)
)

var schemes = map[string]*Dialect{
	"mysql":      MySQL,
	"mariadb":    MySQL,
	"postgres":   Postgres,
	"postgresql": Postgres,
}

// DialectFor picks the dialect for a DATABASE_URL scheme.
func DialectFor(scheme string) (*Dialect, bool) {
	d, ok := schemes[strings.ToLower(scheme)]
	return d, ok
}

func newDialect(name, driver, port string, savepoints bool,
	quote func(string) string,
	bind func(n int) string,
	conflict func(key, update string) string,
) *Dialect {
	upsert := func(table string, columns []string, update string) string {
		quoted := make([]string, len(columns))
		binds := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quote(c)
			binds[i] = bind(i + 1)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
			quote(table), strings.Join(quoted, ", "), strings.Join(binds, ", "), conflict("slug", update))
	}

	return &Dialect{
		Name:        name,
		Driver:      driver,
		DefaultPort: port,
		Savepoints:  savepoints,

		UpsertCategory:   upsert("categories", categoryColumns, "name"),
		UpsertPost:       upsert("posts", postColumns, "title"),
		SelectCategories: fmt.Sprintf("SELECT %s, %s FROM %s", quote("id"), quote("slug"), quote("categories")),
		CountCategories:  fmt.Sprintf("SELECT COUNT(*) FROM %s", quote("categories")),
		CountPosts:       fmt.Sprintf("SELECT COUNT(*) FROM %s", quote("posts")),
	}
}

func mysqlQuote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
