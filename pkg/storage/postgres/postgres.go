package postgres

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "io"
    "sync"
    "time"

    "github.com/jackc/pgx/v5"

    "github.com/feichai0017/vision-ocr/pkg/logger"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("object not found")

// PostgresStorage keeps objects in a single bytea table. A pgx.Conn is not
// safe for concurrent use, so every statement holds mu.
type PostgresStorage struct {
    mu     sync.Mutex
    conn   *pgx.Conn
    logger logger.Logger
}

// NewPostgresStorage connects to dsn and creates the object table if needed.
func NewPostgresStorage(ctx context.Context, dsn string, log logger.Logger) (*PostgresStorage, error) {
    if dsn == "" {
        return nil, errors.New("postgres storage requires a connection string")
    }
    conn, err := pgx.Connect(ctx, dsn)
    if err != nil {
        return nil, fmt.Errorf("failed to connect to postgres: %w", err)
    }
    if err := initSchema(ctx, conn); err != nil {
        conn.Close(ctx)
        return nil, fmt.Errorf("failed to initialize database schema: %w", err)
    }
    return &PostgresStorage{conn: conn, logger: log.Named("postgres")}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
    _, err := conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS ocr_objects (
            key TEXT PRIMARY KEY,
            data BYTEA NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS ocr_objects_created_at_idx ON ocr_objects (created_at);
    `)
    return err
}

func (p *PostgresStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
    data, err := io.ReadAll(reader)
    if err != nil {
        return "", fmt.Errorf("failed to read object: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()
    _, err = p.conn.Exec(ctx, `
        INSERT INTO ocr_objects (key, data, created_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, created_at = NOW()
    `, key, data)
    if err != nil {
        p.logger.Error("Failed to store object",
            logger.String("key", key),
            logger.Error(err),
        )
        return "", fmt.Errorf("failed to store object: %w", err)
    }
    return key, nil
}

func (p *PostgresStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
    p.mu.Lock()
    defer p.mu.Unlock()

    var data []byte
    err := p.conn.QueryRow(ctx, `SELECT data FROM ocr_objects WHERE key = $1`, key).Scan(&data)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
    }
    if err != nil {
        return nil, fmt.Errorf("failed to get object: %w", err)
    }
    return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *PostgresStorage) Delete(ctx context.Context, key string) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if _, err := p.conn.Exec(ctx, `DELETE FROM ocr_objects WHERE key = $1`, key); err != nil {
        return fmt.Errorf("failed to delete object: %w", err)
    }
    return nil
}

func (p *PostgresStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    tag, err := p.conn.Exec(ctx, `DELETE FROM ocr_objects WHERE created_at < $1`, threshold)
    if err != nil {
        return fmt.Errorf("failed to cleanup objects: %w", err)
    }
    p.logger.Info("Expired objects removed",
        logger.Int64("deleted", tag.RowsAffected()),
        logger.Time("threshold", threshold),
    )
    return nil
}

// Close terminates the database connection.
func (p *PostgresStorage) Close(ctx context.Context) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.conn.Close(ctx)
}
