// Package persistence provides database implementations
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db           *sql.DB
	articles     ArticleRepository
	synthetic    SyntheticRepository
	quizzes      QuizRepository
	keywords     KeywordRepository
	dailyQuizzes DailyQuizRepository
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{
		db:           db,
		articles:     &postgresArticleRepo{db: db},
		synthetic:    &postgresSyntheticRepo{db: db},
		quizzes:      &postgresQuizRepo{db: db},
		keywords:     &postgresKeywordRepo{db: db},
		dailyQuizzes: &postgresDailyQuizRepo{db: db},
	}, nil
}

func (p *PostgresDB) Articles() ArticleRepository       { return p.articles }
func (p *PostgresDB) Synthetic() SyntheticRepository    { return p.synthetic }
func (p *PostgresDB) Quizzes() QuizRepository           { return p.quizzes }
func (p *PostgresDB) Keywords() KeywordRepository       { return p.keywords }
func (p *PostgresDB) DailyQuizzes() DailyQuizRepository { return p.dailyQuizzes }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{
		tx:           tx,
		articles:     &postgresArticleRepo{db: p.db, tx: tx},
		synthetic:    &postgresSyntheticRepo{db: p.db, tx: tx},
		quizzes:      &postgresQuizRepo{db: p.db, tx: tx},
		keywords:     &postgresKeywordRepo{db: p.db, tx: tx},
		dailyQuizzes: &postgresDailyQuizRepo{db: p.db, tx: tx},
	}, nil
}

// postgresTx implements Transaction interface
type postgresTx struct {
	tx           *sql.Tx
	articles     ArticleRepository
	synthetic    SyntheticRepository
	quizzes      QuizRepository
	keywords     KeywordRepository
	dailyQuizzes DailyQuizRepository
}

func (t *postgresTx) Commit() error                     { return t.tx.Commit() }
func (t *postgresTx) Rollback() error                   { return t.tx.Rollback() }
func (t *postgresTx) Articles() ArticleRepository       { return t.articles }
func (t *postgresTx) Synthetic() SyntheticRepository    { return t.synthetic }
func (t *postgresTx) Quizzes() QuizRepository           { return t.quizzes }
func (t *postgresTx) Keywords() KeywordRepository       { return t.keywords }
func (t *postgresTx) DailyQuizzes() DailyQuizRepository { return t.dailyQuizzes }

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// conn holds the handles shared by every postgres repository
type conn struct {
	db *sql.DB
	tx *sql.Tx
}

func (c conn) query() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// inTx runs fn inside the repository's transaction, or a fresh one if the
// repository is bound to the database handle.
func (c conn) inTx(ctx context.Context, fn func(q queryer) error) error {
	if c.tx != nil {
		return fn(c.tx)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
