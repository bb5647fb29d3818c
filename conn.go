package crud

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"
)

type PGConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

func ConnectPostgres(config PGConfig) (*sqlx.DB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", config.User, config.Password, config.Host, config.Port, config.Database)
	return sqlx.Open("pgx", connStr)
}

func ConnectPostgresURL(url string) (*sqlx.DB, error) {
	return sqlx.Open("pgx", url)
}

// ConnectSQLite opens the file at path, or an in-memory database when path
// is ":memory:".
func ConnectSQLite(path string) (*sqlx.DB, error) {
	return sqlx.Open("sqlite", path)
}

func ConnectMongo(ctx context.Context, uri string, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, mongoOptions.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return client.Database(database), nil
}
