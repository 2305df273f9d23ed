// Package legacy inspects the old blog database. It only reads from it.
package legacy

import (
	"fmt"
	"regexp"

	"blog_migrate/internal/base"
	"blog_migrate/internal/config"
	"blog_migrate/internal/remap"

	"github.com/go-mysql-org/go-mysql/client"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type querier interface {
	Execute(command string, args ...interface{}) (*mysql.Result, error)
}

// Connect opens the legacy database named by cfg.LegacyDatabaseURL.
func Connect(cfg *config.Config) (*client.Conn, error) {
	target, err := base.ParseURL(cfg.LegacyDatabaseURL, cfg.DatabaseTLS)
	if err != nil {
		return nil, err
	}
	if target.Dialect != base.MySQL {
		return nil, &config.ConfigurationError{Key: "LEGACY_DATABASE_URL", Reason: "must point at a MySQL database"}
	}

	conn, err := client.Connect(target.Addr(), target.User, target.Password, target.Database, func(c *client.Conn) {
		switch target.TLS {
		case "true":
			c.UseSSL(false)
		case "skip-verify":
			c.UseSSL(true)
		}
	})
	if err != nil {
		return nil, &base.ConnectionError{Target: target.String(), Err: err}
	}
	return conn, nil
}

// CategoryIDs lists the distinct category ids the legacy posts reference.
func CategoryIDs(q querier, table, column string) ([]int, error) {
	for _, name := range []string{table, column} {
		if !identifier.MatchString(name) {
			return nil, fmt.Errorf("invalid legacy identifier %q", name)
		}
	}

	res, err := q.Execute(fmt.Sprintf("select distinct `%s` from `%s` where `%s` is not null order by `%s`;", column, table, column, column))
	if err != nil {
		return nil, errors.Wrap(err, "select legacy categories")
	}
	defer res.Close()

	ids := make([]int, 0, len(res.Values))
	for i := range res.Values {
		id, err := res.GetIntByName(i, column)
		if err != nil {
			return nil, errors.Wrapf(err, "read legacy row %d", i)
		}
		ids = append(ids, int(id))
	}
	return ids, nil
}

// Audit warns about every legacy category id the remapper would send to the
// fallback category. It returns those ids.
func Audit(q querier, table, column string, r *remap.Remapper, log logrus.FieldLogger) ([]int, error) {
	ids, err := CategoryIDs(q, table, column)
	if err != nil {
		return nil, err
	}
	return report(ids, r, log), nil
}

func report(ids []int, r *remap.Remapper, log logrus.FieldLogger) []int {
	unmapped := r.Unmapped(ids)
	if len(unmapped) == 0 {
		log.WithField("legacy_categories", len(ids)).Info("every legacy category is mapped")
		return unmapped
	}
	log.WithFields(logrus.Fields{
		"unmapped": unmapped,
		"fallback": r.Fallback(),
	}).Warn("legacy categories without mapping, their posts will use the fallback")
	return unmapped
}
