package configlibsql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"fic-gradebot/pkg/migrations"
)

// Struct selects either a local sqlite file or a remote libsql database.
type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Struct) dsn() (string, error) {
	if config.Url == "" {
		if config.File == "" {
			return "", fmt.Errorf("a path was not specified")
		}
		return config.File, nil
	}
	if config.AuthToken == "" {
		return config.Url, nil
	}
	u, err := url.Parse(config.Url)
	if err != nil {
		return "", err
	}
	query := u.Query()
	query.Set("authToken", config.AuthToken)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// OpenDB opens the database and brings schema up to date.
func (config Struct) OpenDB(ctx context.Context, schema string) (*sql.DB, error) {
	dsn, err := config.dsn()
	if err != nil {
		return nil, err
	}
	return migrations.OpenAndMigrateDB(ctx, schema, dsn)
}
