// Package vectordb loads vector features into PostGIS tables served as vector tiles.
package vectordb

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const simplifyTolerance = 0.001

var geomTypes = map[string]struct{}{
	"Point":           {},
	"LineString":      {},
	"Polygon":         {},
	"MultiPoint":      {},
	"MultiLineString": {},
	"MultiPolygon":    {},
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// UnknownGeomTypeError is returned for an unsupported geometry type
// or a feature not matching the table geometry type.
type UnknownGeomTypeError struct {
	GeomType string
	Expected string
}

func (e *UnknownGeomTypeError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("geom type from feature %s is different from table geom type: %s", e.GeomType, e.Expected)
	}
	return fmt.Sprintf("unknown geom type: %s", e.GeomType)
}

// IsValidGeomType returns true for the supported geometry types.
func IsValidGeomType(geomType string) bool {
	_, ok := geomTypes[geomType]
	return ok
}

// Table describes a dated feature table.
type Table struct {
	Schema   string
	Name     string
	GeomType string
	// Columns are REAL columns filled from the feature properties of the same name.
	Columns        []string
	SRID           int
	DeletePastData bool
}

// Validate validates the table definition.
func (t Table) Validate() error {
	if !IsValidGeomType(t.GeomType) {
		return &UnknownGeomTypeError{GeomType: t.GeomType}
	}
	for _, identifier := range append([]string{t.Schema, t.Name}, t.Columns...) {
		if !identifierPattern.MatchString(identifier) {
			return fmt.Errorf("invalid identifier %q", identifier)
		}
	}
	if t.SRID <= 0 {
		return fmt.Errorf("invalid SRID %d", t.SRID)
	}
	return nil
}

func (t Table) qualifiedName() string {
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

func quoteColumns(prefix string, columns []string) []string {
	result := []string{}
	for _, column := range columns {
		result = append(result, prefix+pgx.Identifier{column}.Sanitize())
	}
	return result
}

// CreateTableSQL returns the statements creating the table and its date index.
func (t Table) CreateTableSQL() []string {
	columns := ""
	for _, column := range quoteColumns("", t.Columns) {
		columns = columns + ", " + column + " REAL"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id SERIAL PRIMARY KEY, date TIMESTAMP, geom GEOMETRY(%s, %d)%s)`,
			t.qualifiedName(), t.GeomType, t.SRID, columns),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(date)`,
			pgx.Identifier{t.Name + "_date_idx"}.Sanitize(), t.qualifiedName()),
	}
}

// MVTFunctionSQL returns the statement creating the vector tile function <schema>.<table>(z, x, y, data_date).
func (t Table) MVTFunctionSQL() string {
	extra := ""
	if len(t.Columns) > 0 {
		extra = ", " + strings.Join(quoteColumns("t.", t.Columns), ", ")
	}
	return fmt.Sprintf(`
CREATE OR REPLACE
FUNCTION %[1]s(z integer, x integer, y integer, data_date timestamp)
RETURNS bytea
AS $$
	WITH
	bounds AS (
		SELECT ST_TileEnvelope(z, x, y) AS geom
	),
	mvtgeom AS (
		SELECT ST_AsMVTGeom(ST_Transform(t.geom, 3857), bounds.geom) AS geom, t.date%[2]s
		FROM %[1]s t, bounds
		WHERE ST_Intersects(t.geom, ST_Transform(bounds.geom, %[3]d))
		AND t.date = data_date
	)
	SELECT ST_AsMVT(mvtgeom, 'default') FROM mvtgeom;
$$
LANGUAGE 'sql'
STABLE
PARALLEL SAFE;`, t.qualifiedName(), extra, t.SRID)
}

// InsertSQL returns the insert statement for a single feature.
func (t Table) InsertSQL() string {
	columns := append([]string{"date", "geom"}, quoteColumns("", t.Columns)...)
	geom := fmt.Sprintf("ST_SetSRID(ST_GeomFromGeoJSON($2), %d)", t.SRID)
	if strings.HasSuffix(t.GeomType, "LineString") {
		geom = fmt.Sprintf("(SELECT CASE WHEN ST_IsSimple(g) THEN g ELSE ST_SimplifyPreserveTopology(g, %v) END FROM (SELECT %s) AS s(g))",
			simplifyTolerance, geom)
	}
	values := []string{"$1", geom}
	for i := range t.Columns {
		values = append(values, fmt.Sprintf("$%d", i+3))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.qualifiedName(), strings.Join(columns, ", "), strings.Join(values, ", "))
}

// Manager loads GeoJSON into a single table.
type Manager struct {
	logger hclog.Logger
	pool   *pgxpool.Pool
	table  Table
}

// Connect opens a connection pool.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed connecting to the database")
	}
	return pool, nil
}

// NewManager validates the table and prepares the database: the postgis extension, the schema,
// the table with its index and the vector tile function.
func NewManager(ctx context.Context, logger hclog.Logger, pool *pgxpool.Pool, table Table) (*Manager, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS postgis",
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{table.Schema}.Sanitize()),
	}
	statements = append(statements, table.CreateTableSQL()...)
	statements = append(statements, table.MVTFunctionSQL())
	for _, statement := range statements {
		if _, err := pool.Exec(ctx, statement); err != nil {
			return nil, errors.Wrap(err, "failed preparing vector table")
		}
	}
	return &Manager{logger: logger, pool: pool, table: table}, nil
}

// Row is a single feature ready to be inserted.
type Row struct {
	Geometry []byte
	Values   []interface{}
}

// Rows converts features to rows, checking the geometry type and reading the data columns.
func (t Table) Rows(features []Feature) ([]Row, error) {
	rows := []Row{}
	for i, feature := range features {
		geomType, err := GeometryType(feature.Geometry)
		if err != nil {
			return nil, errors.Wrapf(err, "feature %d", i)
		}
		if geomType != t.GeomType {
			return nil, &UnknownGeomTypeError{GeomType: geomType, Expected: t.GeomType}
		}
		geometry := []byte(feature.Geometry)
		if geomType == "LineString" {
			clamped, err := ClampLineString(feature.Geometry)
			if err != nil {
				return nil, errors.Wrapf(err, "feature %d", i)
			}
			geometry = clamped
		}
		values := []interface{}{}
		for _, column := range t.Columns {
			value, ok := feature.Properties[column]
			if !ok {
				return nil, fmt.Errorf("feature %d has no property %s", i, column)
			}
			values = append(values, value)
		}
		rows = append(rows, Row{Geometry: geometry, Values: values})
	}
	return rows, nil
}

// InsertGeoJSON replaces the rows of date with the features of the GeoJSON file.
// When the table deletes past data and latest is not zero, older rows are removed too.
func (m *Manager) InsertGeoJSON(ctx context.Context, date time.Time, file string, latest time.Time) (int, error) {
	features, err := ReadFeatures(file)
	if err != nil {
		return 0, err
	}
	rows, err := m.table.Rows(features)
	if err != nil {
		return 0, err
	}
	date = date.UTC()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed starting transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE date = $1", m.table.qualifiedName()), date); err != nil {
		return 0, errors.Wrap(err, "failed deleting rows of the date")
	}
	batch := &pgx.Batch{}
	insert := m.table.InsertSQL()
	for _, row := range rows {
		args := append([]interface{}{date, string(row.Geometry)}, row.Values...)
		batch.Queue(insert, args...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, errors.Wrap(err, "failed inserting features")
	}
	if m.table.DeletePastData && !latest.IsZero() {
		tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE date < $1", m.table.qualifiedName()), latest.UTC())
		if err != nil {
			return 0, errors.Wrap(err, "failed deleting past rows")
		}
		m.logger.Debug("deleted past rows", "table", m.table.qualifiedName(), "count", tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "failed committing features")
	}
	m.logger.Info("features loaded", "table", m.table.qualifiedName(), "date", date, "count", len(rows))
	return len(rows), nil
}
