package categories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"gopkg.in/yaml.v3"

	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/internal/models"
)

// Source errors.
var (
	ErrUnexpectedStatus = errors.New("unexpected status from category source")
	ErrInvalidTable     = errors.New("invalid category table name")
	ErrUnknownSource    = errors.New("unknown category source")
)

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Source provides the authoritative category list.
type Source interface {
	Fetch(ctx context.Context) ([]models.AuthoritativeCategory, error)
}

// NewSource builds the source selected by cfg. It returns nil for "none".
func NewSource(cfg config.CategoriesConfig, timeout time.Duration) (Source, error) {
	switch cfg.Source {
	case config.CategorySourceNone, "":
		return nil, nil
	case config.CategorySourceHTTP:
		return NewHTTPSource(cfg.URL, cfg.APIKey, timeout), nil
	case config.CategorySourceSQLite, config.CategorySourceMySQL:
		src, err := OpenSQLSource(cfg.Source, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}

		return src, nil
	case config.CategorySourceFile:
		return FileSource{Path: cfg.Path}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, cfg.Source)
}

// LoadAuthoritative fetches the list once. Any failure is logged as a
// warning and yields an empty list, so every category becomes new.
func LoadAuthoritative(ctx context.Context, src Source, log *logger.Logger) []models.AuthoritativeCategory {
	if log == nil {
		log = logger.Discard()
	}

	if src == nil {
		log.Warn("no authoritative category source configured, treating all categories as new")

		return []models.AuthoritativeCategory{}
	}

	list, err := src.Fetch(ctx)
	if err != nil {
		log.Warn("authoritative categories unavailable, treating all categories as new", "error", err)

		return []models.AuthoritativeCategory{}
	}

	log.Info("loaded authoritative categories", "count", len(list))

	return list
}

// HTTPSource reads a JSON array of {id, name, slug} from a REST endpoint
// such as a PostgREST table route.
type HTTPSource struct {
	client *resty.Client
	url    string
}

// NewHTTPSource creates an HTTP source. A non-empty apiKey is sent both as
// the apikey header and as a bearer token.
func NewHTTPSource(url, apiKey string, timeout time.Duration) *HTTPSource {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	if apiKey != "" {
		client.SetHeader("apikey", apiKey)
		client.SetAuthToken(apiKey)
	}

	return &HTTPSource{client: client, url: url}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) ([]models.AuthoritativeCategory, error) {
	var list []models.AuthoritativeCategory

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("select", "id,name,slug").
		SetResult(&list).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}

	return list, nil
}

// SQLSource reads categories from a table with id, name and slug columns.
type SQLSource struct {
	db    *sql.DB
	table string
}

// OpenSQLSource opens driver ("sqlite" or "mysql") at dsn.
func OpenSQLSource(driver, dsn, table string) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	src, err := NewSQLSource(db, table)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return src, nil
}

// NewSQLSource wraps an open database.
func NewSQLSource(db *sql.DB, table string) (*SQLSource, error) {
	if table == "" {
		table = "categories"
	}

	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	return &SQLSource{db: db, table: table}, nil
}

// Fetch implements Source.
func (s *SQLSource) Fetch(ctx context.Context) ([]models.AuthoritativeCategory, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, slug FROM "+s.table+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var list []models.AuthoritativeCategory

	for rows.Next() {
		var (
			category models.AuthoritativeCategory
			slug     sql.NullString
		)

		if err := rows.Scan(&category.ID, &category.Name, &slug); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}

		category.Slug = slug.String
		list = append(list, category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}

	return list, nil
}

// Close closes the database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// FileSource reads a JSON or YAML list from disk.
type FileSource struct {
	Path string
}

// Fetch implements Source.
func (s FileSource) Fetch(ctx context.Context) ([]models.AuthoritativeCategory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}

	var list []models.AuthoritativeCategory

	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".json":
		err = json.Unmarshal(data, &list)
	default:
		err = yaml.Unmarshal(data, &list)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse categories file: %w", err)
	}

	return list, nil
}
