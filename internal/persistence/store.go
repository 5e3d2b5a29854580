package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/internal/notify"
	"github.com/google/uuid"
)

// conn is the slice of a database handle the stores need. sqlConn and
// pgxConn adapt database/sql and pgxpool to it.
type conn interface {
	exec(ctx context.Context, query string, args ...any) error
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) scanner
	isNoRows(err error) bool
}

type rows interface {
	scanner
	Next() bool
	Err() error
	Close()
}

// store holds every query shared by the SQLite and Postgres backends.
type store struct {
	c   conn
	d   dialect
	now func() time.Time
}

func (s *store) bind(n int) string { return s.d.bind(n) }

func (s *store) QueryTrims(ctx context.Context, q catalog.TrimQuery) ([]catalog.CarCard, error) {
	sqlText, args := buildTrimQuery(s.d, q)
	rs, err := s.c.query(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query trims: %w", err)
	}
	defer rs.Close()

	out := make([]catalog.CarCard, 0)
	for rs.Next() {
		card, err := scanCard(rs)
		if err != nil {
			return nil, fmt.Errorf("scan trim: %w", err)
		}
		out = append(out, card)
	}
	return out, rs.Err()
}

func (s *store) GetTrim(ctx context.Context, trimID int64) (*catalog.CarCard, error) {
	row := s.c.queryRow(ctx,
		"SELECT "+trimColumns+" FROM toyota_trim_specs WHERE trim_id = "+s.bind(1),
		trimID,
	)
	card, err := scanCard(row)
	if s.c.isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trim %d: %w", trimID, err)
	}
	return &card, nil
}

func (s *store) UpdateTrimDrivetrain(ctx context.Context, trimID int64, driveType, transmission *string) error {
	return s.c.exec(ctx,
		"UPDATE toyota_trim_specs SET drive_type = "+s.bind(1)+", transmission = "+s.bind(2)+" WHERE trim_id = "+s.bind(3),
		driveType, transmission, trimID,
	)
}

// UpsertTrims loads catalog rows, replacing existing trims by id.
func (s *store) UpsertTrims(ctx context.Context, cards []catalog.CarCard) error {
	stmt := upsertTrimSQL(s.d)
	for _, c := range cards {
		if err := s.c.exec(ctx, stmt, cardArgs(c)...); err != nil {
			return fmt.Errorf("upsert trim %d: %w", c.TrimID, err)
		}
	}
	return nil
}

func (s *store) InsertBooking(ctx context.Context, b booking.Booking) error {
	return s.c.exec(ctx,
		`INSERT INTO test_drive_bookings (
			id, user_id, car_id, preferred_location, booking_date, status, created_at,
			contact_name, contact_email, contact_phone,
			vehicle_make, vehicle_model, vehicle_year, vehicle_trim
		) VALUES (`+placeholders(s.d, 1, 14)+`)`,
		b.ID, b.UserID, b.CarID, b.PreferredLocation, b.BookingDate.UTC(), b.Status, b.CreatedAt.UTC(),
		nullString(b.ContactName), nullString(b.ContactEmail), nullString(b.ContactPhone),
		nullString(b.VehicleMake), nullString(b.VehicleModel), nullInt(b.VehicleYear), nullString(b.VehicleTrim),
	)
}

func (s *store) InsertBaseBooking(ctx context.Context, b booking.Booking) error {
	return s.c.exec(ctx,
		`INSERT INTO test_drive_bookings (
			id, user_id, car_id, preferred_location, booking_date, status, created_at
		) VALUES (`+placeholders(s.d, 1, 7)+`)`,
		b.ID, b.UserID, b.CarID, b.PreferredLocation, b.BookingDate.UTC(), b.Status, b.CreatedAt.UTC(),
	)
}

// ListBookings returns the user's bookings, soonest first.
func (s *store) ListBookings(ctx context.Context, userID string) ([]booking.Booking, error) {
	rs, err := s.c.query(ctx,
		`SELECT id, user_id, car_id, preferred_location, booking_date, status, created_at,
			contact_name, contact_email, contact_phone,
			vehicle_make, vehicle_model, vehicle_year, vehicle_trim
		 FROM test_drive_bookings
		 WHERE user_id = `+s.bind(1)+`
		 ORDER BY booking_date ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rs.Close()

	out := make([]booking.Booking, 0)
	for rs.Next() {
		var (
			b                                        booking.Booking
			name, email, phone, vMake, vModel, vTrim *string
			year                                     *int
		)
		if err := rs.Scan(
			&b.ID, &b.UserID, &b.CarID, &b.PreferredLocation, &b.BookingDate, &b.Status, &b.CreatedAt,
			&name, &email, &phone, &vMake, &vModel, &year, &vTrim,
		); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.ContactName, b.ContactEmail, b.ContactPhone = deref(name), deref(email), deref(phone)
		b.VehicleMake, b.VehicleModel, b.VehicleTrim = deref(vMake), deref(vModel), deref(vTrim)
		if year != nil {
			b.VehicleYear = *year
		}
		out = append(out, b)
	}
	return out, rs.Err()
}

func (s *store) Profile(ctx context.Context, userID string) (*identity.Profile, error) {
	p := identity.Profile{UserID: userID}
	err := s.c.queryRow(ctx,
		"SELECT full_name, email, phone FROM profiles WHERE user_id = "+s.bind(1),
		userID,
	).Scan(&p.FullName, &p.Email, &p.Phone)
	if s.c.isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &p, nil
}

func (s *store) PutProfile(ctx context.Context, p identity.Profile) error {
	return s.c.exec(ctx,
		`INSERT INTO profiles (user_id, full_name, email, phone, updated_at)
		 VALUES (`+placeholders(s.d, 1, 5)+`)
		 ON CONFLICT(user_id) DO UPDATE SET
			full_name=excluded.full_name,
			email=excluded.email,
			phone=excluded.phone,
			updated_at=excluded.updated_at`,
		p.UserID, p.FullName, p.Email, p.Phone, s.now().UTC(),
	)
}

func (s *store) Preferences(ctx context.Context, userID string) (*identity.Preferences, error) {
	var (
		p        identity.Preferences
		carTypes string
	)
	err := s.c.queryRow(ctx,
		`SELECT budget_min, budget_max, car_types, seats, mpg_priority, use_case
		 FROM user_preferences WHERE user_id = `+s.bind(1),
		userID,
	).Scan(&p.BudgetMin, &p.BudgetMax, &carTypes, &p.Seats, &p.MPGPriority, &p.UseCase)
	if s.c.isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if carTypes != "" {
		if err := json.Unmarshal([]byte(carTypes), &p.CarTypes); err != nil {
			return nil, fmt.Errorf("decode car_types: %w", err)
		}
	}
	return &p, nil
}

func (s *store) PutPreferences(ctx context.Context, userID string, p identity.Preferences) error {
	carTypes := p.CarTypes
	if carTypes == nil {
		carTypes = []string{}
	}
	encoded, err := json.Marshal(carTypes)
	if err != nil {
		return err
	}
	return s.c.exec(ctx,
		`INSERT INTO user_preferences (user_id, budget_min, budget_max, car_types, seats, mpg_priority, use_case, updated_at)
		 VALUES (`+placeholders(s.d, 1, 8)+`)
		 ON CONFLICT(user_id) DO UPDATE SET
			budget_min=excluded.budget_min,
			budget_max=excluded.budget_max,
			car_types=excluded.car_types,
			seats=excluded.seats,
			mpg_priority=excluded.mpg_priority,
			use_case=excluded.use_case,
			updated_at=excluded.updated_at`,
		userID, p.BudgetMin, p.BudgetMax, string(encoded), p.Seats, p.MPGPriority, p.UseCase, s.now().UTC(),
	)
}

// CreateSession issues an opaque bearer token for userID. Only its hash
// is stored.
func (s *store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	err := s.c.exec(ctx,
		"INSERT INTO sessions (token_hash, user_id, expires_at, created_at) VALUES ("+placeholders(s.d, 1, 4)+")",
		hashToken(token), userID, s.now().Add(ttl).UTC(), s.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Resolve implements identity.Resolver over the sessions table.
func (s *store) Resolve(ctx context.Context, token string) (*identity.User, error) {
	if token == "" {
		return nil, apperr.New(apperr.KindAuth, "Unable to verify user.")
	}
	var (
		u                      identity.User
		expires                time.Time
		fullName, email, phone *string
	)
	err := s.c.queryRow(ctx,
		`SELECT s.user_id, s.expires_at, p.full_name, p.email, p.phone
		 FROM sessions s LEFT JOIN profiles p ON p.user_id = s.user_id
		 WHERE s.token_hash = `+s.bind(1),
		hashToken(token),
	).Scan(&u.ID, &expires, &fullName, &email, &phone)
	if s.c.isNoRows(err) {
		return nil, apperr.New(apperr.KindAuth, "Unable to verify user.")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, "Unable to verify user.")
	}
	if !s.now().Before(expires) {
		return nil, apperr.New(apperr.KindAuth, "Session expired.")
	}
	u.FullName, u.Email, u.Phone = deref(fullName), deref(email), deref(phone)
	u.AccessToken = token
	return &u, nil
}

func (s *store) LoadOutboxJobs(ctx context.Context) ([]*notify.Job, error) {
	rs, err := s.c.query(ctx,
		`SELECT id, dedupe_key, confirmation_json, status, error, created_at, updated_at
		 FROM outbox_jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	ret := make([]*notify.Job, 0)
	for rs.Next() {
		var (
			job     notify.Job
			payload string
			status  string
		)
		if err := rs.Scan(&job.ID, &job.DedupeKey, &payload, &status, &job.Error, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &job.Confirmation); err != nil {
			return nil, fmt.Errorf("decode outbox job %s: %w", job.ID, err)
		}
		job.Status = notify.Status(status)
		ret = append(ret, &job)
	}
	return ret, rs.Err()
}

func (s *store) UpsertOutboxJob(ctx context.Context, job *notify.Job) error {
	if job == nil {
		return nil
	}
	payload, err := json.Marshal(job.Confirmation)
	if err != nil {
		return err
	}
	return s.c.exec(ctx,
		`INSERT INTO outbox_jobs (id, dedupe_key, confirmation_json, status, error, created_at, updated_at)
		 VALUES (`+placeholders(s.d, 1, 7)+`)
		 ON CONFLICT(id) DO UPDATE SET
			dedupe_key=excluded.dedupe_key,
			confirmation_json=excluded.confirmation_json,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID, job.DedupeKey, string(payload), string(job.Status), job.Error, job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
}

func (s *store) DeleteOutboxJob(ctx context.Context, jobID string) error {
	return s.c.exec(ctx, "DELETE FROM outbox_jobs WHERE id = "+s.bind(1), jobID)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
