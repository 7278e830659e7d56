package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	dialectMySQL    = "mysql"
	dialectPostgres = "postgres"
)

const productColumns = `id, name, description, image, audio_url, full_description, top_notes, heart_notes, base_notes, notes, created_at, updated_at`

// openDatabase connects to the configured database and verifies the connection.
func openDatabase(cfg DatabaseConfig) (*sql.DB, error) {
	var (
		driver string
		dsn    string
		err    error
	)
	switch cfg.Type {
	case dialectMySQL:
		driver = "mysql"
		dsn, err = mysqlDSN(cfg)
	case dialectPostgres:
		driver = "postgres"
		dsn = postgresDSN(cfg)
	default:
		return nil, errors.Errorf("unsupported database type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(cfg.MaxConn)
	db.SetMaxIdleConns(cfg.IdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	zap.S().Infof("database connection successful, type: %s", cfg.Type)
	return db, nil
}

// mysqlDSN builds a MySQL/TiDB DSN with parseTime enabled. A DSN asking for
// tls=tidb gets a TLS config built from the TiDB CA bundle.
func mysqlDSN(cfg DatabaseConfig) (string, error) {
	dsn := cfg.DSN
	if strings.Contains(dsn, "tls=tidb") {
		registerTiDBTLS(cfg.TiDBCA)
	}
	var mc *mysql.Config
	if dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", errors.Wrap(err, "parse mysql dsn")
		}
		mc = parsed
	} else {
		mc = mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Passwd
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Name
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}

func registerTiDBTLS(caPath string) {
	if caPath == "" {
		caPath = "/etc/ssl/certs/ca-certificates.crt"
	}
	pool := x509.NewCertPool()
	b, err := os.ReadFile(caPath)
	if err != nil {
		zap.S().Warnf("could not read CA file %s: %v, falling back to InsecureSkipVerify", caPath, err)
		_ = mysql.RegisterTLSConfig("tidb", &tls.Config{InsecureSkipVerify: true})
		return
	}
	if !pool.AppendCertsFromPEM(b) {
		zap.S().Warnf("could not parse CA file %s, falling back to InsecureSkipVerify", caPath)
		_ = mysql.RegisterTLSConfig("tidb", &tls.Config{InsecureSkipVerify: true})
		return
	}
	_ = mysql.RegisterTLSConfig("tidb", &tls.Config{RootCAs: pool})
}

func postgresDSN(cfg DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
}

// ensureTable creates the products table if it doesn't exist.
func ensureTable(ctx context.Context, db *sql.DB, dialect string) error {
	var ddl string
	switch dialect {
	case dialectMySQL:
		ddl = `CREATE TABLE IF NOT EXISTS products (
        seq BIGINT NOT NULL AUTO_INCREMENT,
        id VARCHAR(191) NOT NULL,
        name VARCHAR(255) NOT NULL,
        description TEXT NOT NULL,
        image TEXT NOT NULL,
        audio_url TEXT NOT NULL,
        full_description TEXT NOT NULL,
        top_notes TEXT NOT NULL,
        heart_notes TEXT NOT NULL,
        base_notes TEXT NOT NULL,
        notes TEXT NOT NULL,
        created_at DATETIME(6) NOT NULL,
        updated_at DATETIME(6) NULL,
        PRIMARY KEY (id),
        UNIQUE KEY uq_products_seq (seq)
    )`
	case dialectPostgres:
		ddl = `CREATE TABLE IF NOT EXISTS products (
        seq BIGSERIAL,
        id VARCHAR(191) PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        description TEXT NOT NULL,
        image TEXT NOT NULL,
        audio_url TEXT NOT NULL,
        full_description TEXT NOT NULL,
        top_notes TEXT NOT NULL,
        heart_notes TEXT NOT NULL,
        base_notes TEXT NOT NULL,
        notes TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NULL
    )`
	default:
		return errors.Errorf("unsupported dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "create products table")
	}
	return nil
}

// sqlStore persists products in MySQL/TiDB or PostgreSQL. Updates lock the
// row for the duration of the read-merge-write.
type sqlStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

func newSQLStore(db *sql.DB, dialect string) *sqlStore {
	return &sqlStore{db: db, dialect: dialect, now: time.Now}
}

// rebind rewrites ? placeholders into the dialect's bind syntax.
func rebind(dialect, query string) string {
	if dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p       Product
		updated sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Image, &p.AudioURL, &p.FullDescription,
		&p.TopNotes, &p.HeartNotes, &p.BaseNotes, &p.Notes, &p.CreatedAt, &updated); err != nil {
		return Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if updated.Valid {
		ts := updated.Time.UTC()
		p.UpdatedAt = &ts
	}
	return p, nil
}

func (s *sqlStore) List(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY seq ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return out, nil
}

func (s *sqlStore) Get(ctx context.Context, id string) (Product, error) {
	row := s.db.QueryRowContext(ctx, rebind(s.dialect, `SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, errNotFound(id)
	}
	if err != nil {
		return Product{}, errors.Wrap(err, "get product")
	}
	return p, nil
}

func (s *sqlStore) Create(ctx context.Context, p Product) (Product, error) {
	p, err := prepareNew(p, s.now())
	if err != nil {
		return Product{}, err
	}
	_, err = s.db.ExecContext(ctx, rebind(s.dialect, `INSERT INTO products (`+productColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.Description, p.Image, p.AudioURL, p.FullDescription,
		p.TopNotes, p.HeartNotes, p.BaseNotes, p.Notes, p.CreatedAt, nil)
	if isDuplicateKey(err) {
		return Product{}, errConflict(p.ID)
	}
	if err != nil {
		return Product{}, errors.Wrap(err, "insert product")
	}
	return p, nil
}

func (s *sqlStore) Update(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	if err := patch.validate(); err != nil {
		return Product{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Product{}, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, rebind(s.dialect, `SELECT `+productColumns+` FROM products WHERE id = ? FOR UPDATE`), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, errNotFound(id)
	}
	if err != nil {
		return Product{}, errors.Wrap(err, "lock product")
	}

	patch.applyTo(&p, s.now())
	_, err = tx.ExecContext(ctx, rebind(s.dialect, `UPDATE products SET name = ?, description = ?, image = ?, audio_url = ?,
        full_description = ?, top_notes = ?, heart_notes = ?, base_notes = ?, notes = ?, updated_at = ?
        WHERE id = ?`),
		p.Name, p.Description, p.Image, p.AudioURL, p.FullDescription,
		p.TopNotes, p.HeartNotes, p.BaseNotes, p.Notes, *p.UpdatedAt, id)
	if err != nil {
		return Product{}, errors.Wrap(err, "update product")
	}
	if err := tx.Commit(); err != nil {
		return Product{}, errors.Wrap(err, "commit product update")
	}
	return p, nil
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, rebind(s.dialect, `DELETE FROM products WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	if n == 0 {
		return errNotFound(id)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
