package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rateright/rateright/internal/db"
	"github.com/rateright/rateright/internal/model"
)

// PostgresStore implements Store using pgxpool with PostGIS for geospatial
// queries and pgvector for embedding similarity.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	log     *zap.Logger
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_service_type":   `SELECT id, slug, name, category, description, created_at FROM service_types WHERE slug = $1`,
	"insert_observation": `INSERT INTO observations (id, provider_id, service_type, category, price, currency, source_type, source_url, reply_text, latitude, longitude, observed_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	"get_active_inquiry": `SELECT id, provider_id, provider_name, service_type, email_to, subject, body, message_id, status, reply_body, extracted_price, extracted_currency, sent_at, replied_at, created_at FROM inquiries WHERE provider_id = $1 AND service_type = $2 AND status IN ('sent', 'replied') LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{
		pool:    pool,
		closeFn: pool.Close,
		log:     zap.L().With(zap.String("component", "store")),
	}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		log:  zap.L().With(zap.String("component", "store")),
	}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk seeding).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS service_types (
	id          TEXT PRIMARY KEY,
	slug        TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS providers (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	address      TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	rating       DOUBLE PRECISION,
	review_count INTEGER,
	description  TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	geog         geography(Point, 4326) GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography) STORED,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, address)
);

CREATE TABLE IF NOT EXISTS observations (
	id           TEXT PRIMARY KEY,
	provider_id  TEXT NOT NULL REFERENCES providers(id),
	service_type TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	price        DOUBLE PRECISION NOT NULL,
	currency     TEXT NOT NULL DEFAULT 'USD',
	source_type  TEXT NOT NULL,
	source_url   TEXT NOT NULL DEFAULT '',
	reply_text   TEXT NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	geog         geography(Point, 4326) GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography) STORED,
	observed_at  TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS inquiries (
	id                 TEXT PRIMARY KEY,
	provider_id        TEXT NOT NULL REFERENCES providers(id),
	provider_name      TEXT NOT NULL DEFAULT '',
	service_type       TEXT NOT NULL,
	email_to           TEXT NOT NULL,
	subject            TEXT NOT NULL DEFAULT '',
	body               TEXT NOT NULL DEFAULT '',
	message_id         TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'sent',
	reply_body         TEXT NOT NULL DEFAULT '',
	extracted_price    DOUBLE PRECISION,
	extracted_currency TEXT NOT NULL DEFAULT '',
	sent_at            TIMESTAMPTZ NOT NULL,
	replied_at         TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_providers_geog ON providers USING GIST (geog);
CREATE INDEX IF NOT EXISTS idx_providers_category ON providers(category);
CREATE INDEX IF NOT EXISTS idx_observations_geog ON observations USING GIST (geog);
CREATE INDEX IF NOT EXISTS idx_observations_service_type ON observations(service_type);
CREATE INDEX IF NOT EXISTS idx_observations_provider_id ON observations(provider_id);
CREATE INDEX IF NOT EXISTS idx_service_types_tsv ON service_types USING GIN (to_tsvector('english', name || ' ' || category || ' ' || description));
CREATE INDEX IF NOT EXISTS idx_inquiries_status ON inquiries(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_inquiries_active_pair ON inquiries(provider_id, service_type) WHERE status IN ('sent', 'replied');
`

// vectorMigration is applied separately: embedding similarity degrades to
// empty results when the pgvector extension is unavailable.
const vectorMigration = `
CREATE EXTENSION IF NOT EXISTS vector;
ALTER TABLE service_types ADD COLUMN IF NOT EXISTS embedding vector(1536);
CREATE INDEX IF NOT EXISTS idx_service_types_embedding ON service_types USING hnsw (embedding vector_cosine_ops);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	if _, err := s.pool.Exec(ctx, vectorMigration); err != nil {
		s.log.Warn("pgvector unavailable, embedding search disabled", zap.Error(err))
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Service types ---

func (s *PostgresStore) GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error) {
	var st model.ServiceType
	err := s.pool.QueryRow(ctx,
		`SELECT id, slug, name, category, description, created_at FROM service_types WHERE slug = $1`,
		slug,
	).Scan(&st.ID, &st.Slug, &st.Name, &st.Category, &st.Description, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get service type %s", slug)
	}
	return &st, nil
}

func (s *PostgresStore) CreateServiceType(ctx context.Context, st *model.ServiceType) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO service_types (id, slug, name, category, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (slug) DO NOTHING`,
		st.ID, st.Slug, st.Name, st.Category, st.Description, st.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: create service type %s", st.Slug)
	}
	if len(st.Embedding) > 0 {
		return s.UpdateServiceTypeEmbedding(ctx, st.Slug, st.Embedding)
	}
	return nil
}

func (s *PostgresStore) SearchServiceTypesText(ctx context.Context, query string, limit int, minScore float64) ([]model.MatchedServiceType, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT slug, name, score FROM (
			SELECT slug, name,
			       ts_rank(to_tsvector('english', name || ' ' || category || ' ' || description),
			               plainto_tsquery('english', $1))::float8 AS score
			FROM service_types
			WHERE to_tsvector('english', name || ' ' || category || ' ' || description)
			      @@ plainto_tsquery('english', $1)
		 ) ranked
		 WHERE score >= $2
		 ORDER BY score DESC
		 LIMIT $3`,
		query, minScore, limit,
	)
	if err != nil {
		s.log.Warn("text search unavailable", zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var out []model.MatchedServiceType
	for rows.Next() {
		m := model.MatchedServiceType{MatchSource: model.MatchSourceText}
		if err := rows.Scan(&m.Slug, &m.Name, &m.Score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan text match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: text search rows")
}

func (s *PostgresStore) SearchServiceTypesVector(ctx context.Context, embedding []float32, limit int, minScore float64) ([]model.MatchedServiceType, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT slug, name, (1 - (embedding <=> $1))::float8 AS score
		 FROM service_types
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		s.log.Warn("vector search unavailable", zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var out []model.MatchedServiceType
	for rows.Next() {
		m := model.MatchedServiceType{MatchSource: model.MatchSourceVector}
		if err := rows.Scan(&m.Slug, &m.Name, &m.Score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vector match")
		}
		if m.Score >= minScore {
			out = append(out, m)
		}
	}
	return out, eris.Wrap(rows.Err(), "postgres: vector search rows")
}

func (s *PostgresStore) ListServiceTypesMissingEmbedding(ctx context.Context, limit int) ([]model.ServiceType, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, slug, name, category, description, created_at
		 FROM service_types WHERE embedding IS NULL
		 ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list missing embeddings")
	}
	defer rows.Close()

	var out []model.ServiceType
	for rows.Next() {
		var st model.ServiceType
		if err := rows.Scan(&st.ID, &st.Slug, &st.Name, &st.Category, &st.Description, &st.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan service type")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: missing embeddings rows")
}

func (s *PostgresStore) UpdateServiceTypeEmbedding(ctx context.Context, slug string, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE service_types SET embedding = $1 WHERE slug = $2`,
		pgvector.NewVector(embedding), slug,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update embedding %s", slug)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ServiceTypeNames(ctx context.Context, slugs []string) (map[string]string, error) {
	if len(slugs) == 0 {
		return map[string]string{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT slug, name FROM service_types WHERE slug = ANY($1)`,
		slugs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: service type names")
	}
	defer rows.Close()

	names := make(map[string]string, len(slugs))
	for rows.Next() {
		var slug, name string
		if err := rows.Scan(&slug, &name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan service type name")
		}
		names[slug] = name
	}
	return names, eris.Wrap(rows.Err(), "postgres: service type names rows")
}

// --- Providers ---

// UpsertProvider inserts a provider keyed on (name, address). On conflict the
// existing row wins: location and identity fields are never overwritten.
func (s *PostgresStore) UpsertProvider(ctx context.Context, p *model.Provider) (string, bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	var id string
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO providers (id, name, category, latitude, longitude, address, city, rating, review_count, description, phone, email, website, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (name, address) DO UPDATE SET name = providers.name
		 RETURNING id, (xmax = 0)`,
		p.ID, p.Name, p.Category, p.Latitude, p.Longitude, p.Address, p.City,
		p.Rating, p.ReviewCount, p.Description, p.Phone, p.Email, p.Website, p.CreatedAt,
	).Scan(&id, &created)
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: upsert provider %s", p.Name)
	}
	p.ID = id
	return id, created, nil
}

const providerColumns = `id, name, category, latitude, longitude, address, city, rating, review_count, description, phone, email, website, created_at`

func scanProvider(row pgx.Rows, p *model.Provider) error {
	return row.Scan(&p.ID, &p.Name, &p.Category, &p.Latitude, &p.Longitude,
		&p.Address, &p.City, &p.Rating, &p.ReviewCount, &p.Description,
		&p.Phone, &p.Email, &p.Website, &p.CreatedAt)
}

func (s *PostgresStore) GetProvidersByIDs(ctx context.Context, ids []string) ([]model.Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get providers by ids")
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := scanProvider(rows, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: providers by ids rows")
}

// FindProvidersWithPrices returns providers that have at least one price
// observation for any of the given service types within the radius, ordered
// by distance from the search point, capped at MaxSearchResults providers.
func (s *PostgresStore) FindProvidersWithPrices(ctx context.Context, slugs []string, lat, lng, radiusMeters float64) ([]model.ProviderWithPrices, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.category, p.latitude, p.longitude, p.address, p.city,
		        p.rating, p.review_count, p.description, p.phone, p.email, p.website, p.created_at,
		        ST_Distance(p.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_meters,
		        o.service_type, o.price, o.currency, o.source_type, o.observed_at
		 FROM observations o
		 JOIN providers p ON p.id = o.provider_id
		 WHERE o.service_type = ANY($3)
		   AND ST_DWithin(p.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $4)
		 ORDER BY distance_meters ASC, o.observed_at DESC`,
		lat, lng, slugs, radiusMeters,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find providers with prices")
	}
	defer rows.Close()
	return collectPricedProviders(rows)
}

func collectPricedProviders(rows pgx.Rows) ([]model.ProviderWithPrices, error) {
	var out []model.ProviderWithPrices
	index := map[string]int{}
	for rows.Next() {
		var p model.ProviderWithPrices
		var obs model.ObservationSummary
		err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Latitude, &p.Longitude,
			&p.Address, &p.City, &p.Rating, &p.ReviewCount, &p.Description,
			&p.Phone, &p.Email, &p.Website, &p.CreatedAt, &p.DistanceMeters,
			&obs.ServiceType, &obs.Price, &obs.Currency, &obs.SourceType, &obs.ObservedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan priced provider")
		}
		if i, ok := index[p.ID]; ok {
			out[i].Observations = append(out[i].Observations, obs)
			continue
		}
		if len(out) >= MaxSearchResults {
			continue
		}
		p.Observations = []model.ObservationSummary{obs}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: priced provider rows")
}

// FindProvidersByCategory returns providers in a category within the radius,
// without requiring observations. Used to find inquiry targets.
func (s *PostgresStore) FindProvidersByCategory(ctx context.Context, slugs []string, lat, lng, radiusMeters float64) ([]model.ProviderWithPrices, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+providerColumnsPrefixed+`,
		        ST_Distance(p.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_meters
		 FROM providers p
		 WHERE p.category = ANY($3)
		   AND ST_DWithin(p.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $4)
		 ORDER BY distance_meters ASC
		 LIMIT $5`,
		lat, lng, slugs, radiusMeters, MaxSearchResults,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find providers by category")
	}
	defer rows.Close()
	return collectDistanceProviders(rows)
}

const providerColumnsPrefixed = `p.id, p.name, p.category, p.latitude, p.longitude, p.address, p.city, p.rating, p.review_count, p.description, p.phone, p.email, p.website, p.created_at`

// FindProvidersNear loads the given providers with their distance from the
// search point, optionally filtered to a radius.
func (s *PostgresStore) FindProvidersNear(ctx context.Context, ids []string, lat, lng float64, radiusMeters *float64) ([]model.ProviderWithPrices, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + providerColumnsPrefixed + `,
	        ST_Distance(p.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance_meters
	 FROM providers p
	 WHERE p.id = ANY($3)`
	args := []any{lat, lng, ids}
	if radiusMeters != nil {
		query += ` AND ST_DWithin(p.geog, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $4)`
		args = append(args, *radiusMeters)
	}
	query += fmt.Sprintf(` ORDER BY distance_meters ASC LIMIT %d`, MaxSearchResults)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find providers near")
	}
	defer rows.Close()
	return collectDistanceProviders(rows)
}

func collectDistanceProviders(rows pgx.Rows) ([]model.ProviderWithPrices, error) {
	var out []model.ProviderWithPrices
	for rows.Next() {
		var p model.ProviderWithPrices
		err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Latitude, &p.Longitude,
			&p.Address, &p.City, &p.Rating, &p.ReviewCount, &p.Description,
			&p.Phone, &p.Email, &p.Website, &p.CreatedAt, &p.DistanceMeters)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider distance")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: provider distance rows")
}

// --- Observations ---

func (s *PostgresStore) InsertObservation(ctx context.Context, o *model.Observation) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if o.ObservedAt.IsZero() {
		o.ObservedAt = now
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO observations (id, provider_id, service_type, category, price, currency, source_type, source_url, reply_text, latitude, longitude, observed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.ProviderID, o.ServiceType, o.Category, o.Price, o.Currency,
		string(o.SourceType), o.SourceURL, o.ReplyText, o.Latitude, o.Longitude,
		o.ObservedAt, o.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert observation")
}

// --- Inquiries ---

func (s *PostgresStore) CreateInquiry(ctx context.Context, inq *model.Inquiry) error {
	if inq.ID == "" {
		inq.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if inq.SentAt.IsZero() {
		inq.SentAt = now
	}
	if inq.CreatedAt.IsZero() {
		inq.CreatedAt = now
	}
	if inq.Status == "" {
		inq.Status = model.InquirySent
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO inquiries (id, provider_id, provider_name, service_type, email_to, subject, body, message_id, status, sent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inq.ID, inq.ProviderID, inq.ProviderName, inq.ServiceType, inq.EmailTo,
		inq.Subject, inq.Body, inq.MessageID, string(inq.Status), inq.SentAt, inq.CreatedAt,
	)
	return eris.Wrap(err, "postgres: create inquiry")
}

const inquiryColumns = `id, provider_id, provider_name, service_type, email_to, subject, body, message_id, status, reply_body, extracted_price, extracted_currency, sent_at, replied_at, created_at`

func scanInquiry(row pgx.Row, inq *model.Inquiry) error {
	return row.Scan(&inq.ID, &inq.ProviderID, &inq.ProviderName, &inq.ServiceType,
		&inq.EmailTo, &inq.Subject, &inq.Body, &inq.MessageID, &inq.Status,
		&inq.ReplyBody, &inq.ExtractedPrice, &inq.ExtractedCurrency,
		&inq.SentAt, &inq.RepliedAt, &inq.CreatedAt)
}

// GetActiveInquiry returns the sent or replied inquiry for the pair, or nil
// when none exists.
func (s *PostgresStore) GetActiveInquiry(ctx context.Context, providerID, serviceType string) (*model.Inquiry, error) {
	var inq model.Inquiry
	err := scanInquiry(s.pool.QueryRow(ctx,
		`SELECT `+inquiryColumns+` FROM inquiries
		 WHERE provider_id = $1 AND service_type = $2 AND status IN ('sent', 'replied')
		 LIMIT 1`,
		providerID, serviceType,
	), &inq)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get active inquiry")
	}
	return &inq, nil
}

func (s *PostgresStore) ListPendingInquiries(ctx context.Context) ([]model.Inquiry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+inquiryColumns+` FROM inquiries WHERE status = 'sent' ORDER BY sent_at ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending inquiries")
	}
	defer rows.Close()

	var out []model.Inquiry
	for rows.Next() {
		var inq model.Inquiry
		if err := scanInquiry(rows, &inq); err != nil {
			return nil, eris.Wrap(err, "postgres: scan inquiry")
		}
		out = append(out, inq)
	}
	return out, eris.Wrap(rows.Err(), "postgres: pending inquiry rows")
}

func (s *PostgresStore) MarkInquiryReplied(ctx context.Context, id, replyBody string, price *float64, currency string, repliedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE inquiries
		 SET status = 'replied', reply_body = $1, extracted_price = $2, extracted_currency = $3, replied_at = $4
		 WHERE id = $5`,
		replyBody, price, currency, repliedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark inquiry replied %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateInquiryStatus(ctx context.Context, id string, status model.InquiryStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE inquiries SET status = $1 WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update inquiry status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InquiryStatusesByProvider returns the active inquiry status per provider.
// Replied wins over sent when a provider has inquiries for several services.
func (s *PostgresStore) InquiryStatusesByProvider(ctx context.Context, providerIDs []string) (map[string]model.InquiryStatus, error) {
	if len(providerIDs) == 0 {
		return map[string]model.InquiryStatus{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT provider_id, status FROM inquiries
		 WHERE provider_id = ANY($1) AND status IN ('sent', 'replied')`,
		providerIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: inquiry statuses")
	}
	defer rows.Close()

	statuses := map[string]model.InquiryStatus{}
	for rows.Next() {
		var providerID string
		var status model.InquiryStatus
		if err := rows.Scan(&providerID, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan inquiry status")
		}
		if existing, ok := statuses[providerID]; !ok || existing != model.InquiryReplied {
			statuses[providerID] = status
		}
	}
	return statuses, eris.Wrap(rows.Err(), "postgres: inquiry status rows")
}
