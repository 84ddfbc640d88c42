package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/rateright/rateright/internal/geo"
	"github.com/rateright/rateright/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It has no spatial
// or similarity indexes: radius filtering runs in Go over candidate rows,
// and text/vector service-type search returns no matches, which pushes
// intent resolution onto its fallback path. Meant for local development.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS service_types (
	id          TEXT PRIMARY KEY,
	slug        TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS providers (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	address      TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	rating       REAL,
	review_count INTEGER,
	description  TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, address)
);

CREATE TABLE IF NOT EXISTS observations (
	id           TEXT PRIMARY KEY,
	provider_id  TEXT NOT NULL REFERENCES providers(id),
	service_type TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	price        REAL NOT NULL,
	currency     TEXT NOT NULL DEFAULT 'USD',
	source_type  TEXT NOT NULL,
	source_url   TEXT NOT NULL DEFAULT '',
	reply_text   TEXT NOT NULL DEFAULT '',
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	observed_at  DATETIME NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
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
	extracted_price    REAL,
	extracted_currency TEXT NOT NULL DEFAULT '',
	sent_at            DATETIME NOT NULL,
	replied_at         DATETIME,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_providers_category ON providers(category);
CREATE INDEX IF NOT EXISTS idx_observations_service_type ON observations(service_type);
CREATE INDEX IF NOT EXISTS idx_observations_provider_id ON observations(provider_id);
CREATE INDEX IF NOT EXISTS idx_inquiries_status ON inquiries(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// --- Service types ---

func (s *SQLiteStore) GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error) {
	var st model.ServiceType
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, category, description, created_at FROM service_types WHERE slug = ?`,
		slug,
	).Scan(&st.ID, &st.Slug, &st.Name, &st.Category, &st.Description, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get service type %s", slug)
	}
	return &st, nil
}

func (s *SQLiteStore) CreateServiceType(ctx context.Context, st *model.ServiceType) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_types (id, slug, name, category, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO NOTHING`,
		st.ID, st.Slug, st.Name, st.Category, st.Description, st.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: create service type %s", st.Slug)
}

// SearchServiceTypesText has no full-text index in SQLite; it returns no
// matches so callers fall back to direct slug lookup.
func (s *SQLiteStore) SearchServiceTypesText(ctx context.Context, query string, limit int, minScore float64) ([]model.MatchedServiceType, error) {
	return nil, nil
}

// SearchServiceTypesVector has no embedding support in SQLite.
func (s *SQLiteStore) SearchServiceTypesVector(ctx context.Context, embedding []float32, limit int, minScore float64) ([]model.MatchedServiceType, error) {
	return nil, nil
}

func (s *SQLiteStore) ListServiceTypesMissingEmbedding(ctx context.Context, limit int) ([]model.ServiceType, error) {
	return nil, nil
}

func (s *SQLiteStore) UpdateServiceTypeEmbedding(ctx context.Context, slug string, embedding []float32) error {
	return nil
}

func (s *SQLiteStore) ServiceTypeNames(ctx context.Context, slugs []string) (map[string]string, error) {
	if len(slugs) == 0 {
		return map[string]string{}, nil
	}
	args := make([]any, len(slugs))
	for i, slug := range slugs {
		args[i] = slug
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT slug, name FROM service_types WHERE slug IN (`+placeholders(len(slugs))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: service type names")
	}
	defer rows.Close()

	names := make(map[string]string, len(slugs))
	for rows.Next() {
		var slug, name string
		if err := rows.Scan(&slug, &name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan service type name")
		}
		names[slug] = name
	}
	return names, eris.Wrap(rows.Err(), "sqlite: service type names rows")
}

// --- Providers ---

func (s *SQLiteStore) UpsertProvider(ctx context.Context, p *model.Provider) (string, bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM providers WHERE name = ? AND address = ?`,
		p.Name, p.Address,
	).Scan(&existing)
	if err == nil {
		p.ID = existing
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, eris.Wrapf(err, "sqlite: lookup provider %s", p.Name)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO providers (id, name, category, latitude, longitude, address, city, rating, review_count, description, phone, email, website, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Category, p.Latitude, p.Longitude, p.Address, p.City,
		p.Rating, p.ReviewCount, p.Description, p.Phone, p.Email, p.Website, p.CreatedAt,
	)
	if err != nil {
		return "", false, eris.Wrapf(err, "sqlite: insert provider %s", p.Name)
	}
	return p.ID, true, nil
}

func (s *SQLiteStore) GetProvidersByIDs(ctx context.Context, ids []string) ([]model.Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, latitude, longitude, address, city, rating, review_count, description, phone, email, website, created_at
		 FROM providers WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get providers by ids")
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		var p model.Provider
		err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Latitude, &p.Longitude,
			&p.Address, &p.City, &p.Rating, &p.ReviewCount, &p.Description,
			&p.Phone, &p.Email, &p.Website, &p.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: provider rows")
}

func (s *SQLiteStore) FindProvidersWithPrices(ctx context.Context, slugs []string, lat, lng, radiusMeters float64) ([]model.ProviderWithPrices, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	args := make([]any, len(slugs))
	for i, slug := range slugs {
		args[i] = slug
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.category, p.latitude, p.longitude, p.address, p.city,
		        p.rating, p.review_count, p.description, p.phone, p.email, p.website, p.created_at,
		        o.service_type, o.price, o.currency, o.source_type, o.observed_at
		 FROM observations o
		 JOIN providers p ON p.id = o.provider_id
		 WHERE o.service_type IN (`+placeholders(len(slugs))+`)
		 ORDER BY o.observed_at DESC`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find providers with prices")
	}
	defer rows.Close()

	byID := map[string]*model.ProviderWithPrices{}
	for rows.Next() {
		var p model.ProviderWithPrices
		var obs model.ObservationSummary
		err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Latitude, &p.Longitude,
			&p.Address, &p.City, &p.Rating, &p.ReviewCount, &p.Description,
			&p.Phone, &p.Email, &p.Website, &p.CreatedAt,
			&obs.ServiceType, &obs.Price, &obs.Currency, &obs.SourceType, &obs.ObservedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan priced provider")
		}
		if existing, ok := byID[p.ID]; ok {
			existing.Observations = append(existing.Observations, obs)
			continue
		}
		p.DistanceMeters = geo.Haversine(lat, lng, p.Latitude, p.Longitude)
		if p.DistanceMeters > radiusMeters {
			continue
		}
		p.Observations = []model.ObservationSummary{obs}
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: priced provider rows")
	}
	return sortByDistance(byID), nil
}

func (s *SQLiteStore) FindProvidersByCategory(ctx context.Context, slugs []string, lat, lng, radiusMeters float64) ([]model.ProviderWithPrices, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	args := make([]any, len(slugs))
	for i, slug := range slugs {
		args[i] = slug
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, latitude, longitude, address, city, rating, review_count, description, phone, email, website, created_at
		 FROM providers WHERE category IN (`+placeholders(len(slugs))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find providers by category")
	}
	defer rows.Close()
	return s.collectNear(rows, lat, lng, &radiusMeters)
}

func (s *SQLiteStore) FindProvidersNear(ctx context.Context, ids []string, lat, lng float64, radiusMeters *float64) ([]model.ProviderWithPrices, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, latitude, longitude, address, city, rating, review_count, description, phone, email, website, created_at
		 FROM providers WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find providers near")
	}
	defer rows.Close()
	return s.collectNear(rows, lat, lng, radiusMeters)
}

func (s *SQLiteStore) collectNear(rows *sql.Rows, lat, lng float64, radiusMeters *float64) ([]model.ProviderWithPrices, error) {
	byID := map[string]*model.ProviderWithPrices{}
	for rows.Next() {
		var p model.ProviderWithPrices
		err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Latitude, &p.Longitude,
			&p.Address, &p.City, &p.Rating, &p.ReviewCount, &p.Description,
			&p.Phone, &p.Email, &p.Website, &p.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider distance")
		}
		p.DistanceMeters = geo.Haversine(lat, lng, p.Latitude, p.Longitude)
		if radiusMeters != nil && p.DistanceMeters > *radiusMeters {
			continue
		}
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: provider distance rows")
	}
	return sortByDistance(byID), nil
}

func sortByDistance(byID map[string]*model.ProviderWithPrices) []model.ProviderWithPrices {
	out := make([]model.ProviderWithPrices, 0, len(byID))
	for _, p := range byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if len(out) > MaxSearchResults {
		out = out[:MaxSearchResults]
	}
	return out
}

// --- Observations ---

func (s *SQLiteStore) InsertObservation(ctx context.Context, o *model.Observation) error {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (id, provider_id, service_type, category, price, currency, source_type, source_url, reply_text, latitude, longitude, observed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ProviderID, o.ServiceType, o.Category, o.Price, o.Currency,
		string(o.SourceType), o.SourceURL, o.ReplyText, o.Latitude, o.Longitude,
		o.ObservedAt, o.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert observation")
}

// --- Inquiries ---

func (s *SQLiteStore) CreateInquiry(ctx context.Context, inq *model.Inquiry) error {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inquiries (id, provider_id, provider_name, service_type, email_to, subject, body, message_id, status, sent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inq.ID, inq.ProviderID, inq.ProviderName, inq.ServiceType, inq.EmailTo,
		inq.Subject, inq.Body, inq.MessageID, string(inq.Status), inq.SentAt, inq.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: create inquiry")
}

func (s *SQLiteStore) scanInquiryRow(scan func(dest ...any) error) (*model.Inquiry, error) {
	var inq model.Inquiry
	var status string
	err := scan(&inq.ID, &inq.ProviderID, &inq.ProviderName, &inq.ServiceType,
		&inq.EmailTo, &inq.Subject, &inq.Body, &inq.MessageID, &status,
		&inq.ReplyBody, &inq.ExtractedPrice, &inq.ExtractedCurrency,
		&inq.SentAt, &inq.RepliedAt, &inq.CreatedAt)
	if err != nil {
		return nil, err
	}
	inq.Status = model.InquiryStatus(status)
	return &inq, nil
}

const sqliteInquiryColumns = `id, provider_id, provider_name, service_type, email_to, subject, body, message_id, status, reply_body, extracted_price, extracted_currency, sent_at, replied_at, created_at`

func (s *SQLiteStore) GetActiveInquiry(ctx context.Context, providerID, serviceType string) (*model.Inquiry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteInquiryColumns+` FROM inquiries
		 WHERE provider_id = ? AND service_type = ? AND status IN ('sent', 'replied')
		 LIMIT 1`,
		providerID, serviceType,
	)
	inq, err := s.scanInquiryRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get active inquiry")
	}
	return inq, nil
}

func (s *SQLiteStore) ListPendingInquiries(ctx context.Context) ([]model.Inquiry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteInquiryColumns+` FROM inquiries WHERE status = 'sent' ORDER BY sent_at ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending inquiries")
	}
	defer rows.Close()

	var out []model.Inquiry
	for rows.Next() {
		inq, err := s.scanInquiryRow(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan inquiry")
		}
		out = append(out, *inq)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: pending inquiry rows")
}

func (s *SQLiteStore) MarkInquiryReplied(ctx context.Context, id, replyBody string, price *float64, currency string, repliedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inquiries
		 SET status = 'replied', reply_body = ?, extracted_price = ?, extracted_currency = ?, replied_at = ?
		 WHERE id = ?`,
		replyBody, price, currency, repliedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark inquiry replied %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateInquiryStatus(ctx context.Context, id string, status model.InquiryStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inquiries SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update inquiry status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) InquiryStatusesByProvider(ctx context.Context, providerIDs []string) (map[string]model.InquiryStatus, error) {
	if len(providerIDs) == 0 {
		return map[string]model.InquiryStatus{}, nil
	}
	args := make([]any, len(providerIDs))
	for i, id := range providerIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_id, status FROM inquiries
		 WHERE provider_id IN (`+placeholders(len(providerIDs))+`) AND status IN ('sent', 'replied')`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: inquiry statuses")
	}
	defer rows.Close()

	statuses := map[string]model.InquiryStatus{}
	for rows.Next() {
		var providerID, status string
		if err := rows.Scan(&providerID, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan inquiry status")
		}
		if existing, ok := statuses[providerID]; !ok || existing != model.InquiryReplied {
			statuses[providerID] = model.InquiryStatus(status)
		}
	}
	return statuses, eris.Wrap(rows.Err(), "sqlite: inquiry status rows")
}
