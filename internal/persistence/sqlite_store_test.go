package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "carshop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedTrims(t *testing.T, store *SQLiteStore) {
	t.Helper()
	require.NoError(t, store.UpsertTrims(context.Background(), []catalog.CarCard{
		{
			TrimID: 1, ModelYear: ptr(2024), Make: ptr("Toyota"), Model: ptr("RAV4"), Trim: ptr("XLE"),
			MSRP: ptr(29800.0), BodyType: ptr("SUV"), BodySeats: ptr(5), DriveType: ptr(`AWD,"transmission":"8-Speed Automatic"`),
			CombinedMPG: ptr(30.0), ImageURL: ptr("https://img.test/rav4.jpg"),
		},
		{
			TrimID: 2, ModelYear: ptr(2024), Make: ptr("Toyota"), Model: ptr("Highlander"), Trim: ptr("LE"),
			MSRP: ptr(39900.0), BodyType: ptr("SUV"), BodySeats: ptr(8), DriveType: ptr("FWD"),
			CombinedMPG: ptr(24.0),
		},
		{
			TrimID: 3, ModelYear: ptr(2024), Make: ptr("Toyota"), Model: ptr("Camry"), Trim: ptr("SE 100%_Special"),
			BodyType: ptr("Sedan"), BodySeats: ptr(5), CombinedMPG: ptr(39.0),
		},
	}))
}

func trimIDs(cards []catalog.CarCard) []int64 {
	ids := make([]int64, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.TrimID)
	}
	return ids
}

func TestSQLiteStore_QueryTrims(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedTrims(t, store)
	ctx := context.Background()

	tests := []struct {
		name  string
		query catalog.TrimQuery
		want  []int64
	}{
		{name: "all", query: catalog.TrimQuery{}, want: []int64{1, 2, 3}},
		{name: "body type is case insensitive", query: catalog.TrimQuery{BodyType: "suv"}, want: []int64{1, 2}},
		{name: "free text", query: catalog.TrimQuery{Text: "highlander"}, want: []int64{2}},
		{name: "seats min", query: catalog.TrimQuery{SeatsMin: ptr(7)}, want: []int64{2}},
		{name: "budget max", query: catalog.TrimQuery{MSRPMax: ptr(35000.0)}, want: []int64{1}},
		{name: "has image", query: catalog.TrimQuery{HasImage: true}, want: []int64{1}},
		{name: "wildcards are literal", query: catalog.TrimQuery{Trim: "100%_"}, want: []int64{3}},
		{name: "percent alone does not match all", query: catalog.TrimQuery{Trim: "%"}, want: []int64{3}},
		{name: "msrp asc nulls last", query: catalog.TrimQuery{OrderBy: "msrp"}, want: []int64{1, 2, 3}},
		{name: "msrp desc nulls last", query: catalog.TrimQuery{OrderBy: "msrp", Descending: true}, want: []int64{2, 1, 3}},
		{name: "mpg desc with limit", query: catalog.TrimQuery{OrderBy: "combined_mpg", Descending: true, Limit: 2}, want: []int64{3, 1}},
		{name: "unknown order column ignored", query: catalog.TrimQuery{OrderBy: "msrp; DROP TABLE x"}, want: []int64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.QueryTrims(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, trimIDs(got))
		})
	}
}

func TestSQLiteStore_GetAndRepairTrim(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedTrims(t, store)
	ctx := context.Background()

	missing, err := store.GetTrim(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	card, err := store.GetTrim(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, "RAV4", *card.Model)
	assert.Nil(t, card.Transmission)

	repaired := catalog.RepairRow(*card)
	require.NoError(t, store.UpdateTrimDrivetrain(ctx, 1, repaired.DriveType, repaired.Transmission))

	card, err = store.GetTrim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "AWD", *card.DriveType)
	require.NotNil(t, card.Transmission)
	assert.Equal(t, "8-Speed Automatic", *card.Transmission)
}

func TestSQLiteStore_AuditRepairsRows(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seedTrims(t, store)

	auditor, err := catalog.NewAuditor(store, "0 * * * *", catalog.WithRepair(true))
	require.NoError(t, err)
	report, err := auditor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Repaired)

	card, err := store.GetTrim(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "AWD", *card.DriveType)
}

func TestSQLiteStore_Bookings(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBooking(ctx, booking.Booking{
		ID: "b-2", UserID: "u-1", CarID: 2, PreferredLocation: "north", BookingDate: start.Add(24 * time.Hour),
		Status: booking.StatusPending, ContactName: "Ada", ContactEmail: "ada@example.com",
		VehicleMake: "Toyota", VehicleModel: "Highlander", VehicleYear: 2024, VehicleTrim: "LE",
		CreatedAt: start,
	}))
	require.NoError(t, store.InsertBaseBooking(ctx, booking.Booking{
		ID: "b-1", UserID: "u-1", CarID: 1, PreferredLocation: "downtown", BookingDate: start,
		Status: booking.StatusPending, CreatedAt: start,
	}))
	require.NoError(t, store.InsertBaseBooking(ctx, booking.Booking{
		ID: "b-3", UserID: "u-2", CarID: 1, PreferredLocation: "downtown", BookingDate: start,
		Status: booking.StatusPending, CreatedAt: start,
	}))

	got, err := store.ListBookings(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b-1", got[0].ID)
	assert.Empty(t, got[0].ContactName)
	assert.Equal(t, "b-2", got[1].ID)
	assert.Equal(t, "Ada", got[1].ContactName)
	assert.Equal(t, 2024, got[1].VehicleYear)
	assert.True(t, got[1].BookingDate.Equal(start.Add(24*time.Hour)))

	err = store.InsertBaseBooking(ctx, booking.Booking{ID: "b-1", UserID: "u-1", BookingDate: start, CreatedAt: start})
	assert.Error(t, err)
}

func TestSQLiteStore_ProfilesAndPreferences(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	p, err := store.Profile(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, p)
	prefs, err := store.Preferences(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, prefs)

	require.NoError(t, store.PutProfile(ctx, identity.Profile{UserID: "u-1", FullName: "Ada", Email: "ada@example.com"}))
	require.NoError(t, store.PutProfile(ctx, identity.Profile{UserID: "u-1", FullName: "Ada L", Email: "ada@example.com", Phone: "555"}))
	p, err = store.Profile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, &identity.Profile{UserID: "u-1", FullName: "Ada L", Email: "ada@example.com", Phone: "555"}, p)

	want := identity.Preferences{
		BudgetMin:   ptr(int64(2500000)),
		BudgetMax:   ptr(int64(4000000)),
		CarTypes:    []string{"SUV", "Minivan"},
		Seats:       ptr(7),
		MPGPriority: ptr("high"),
	}
	require.NoError(t, store.PutPreferences(ctx, "u-1", want))
	prefs, err = store.Preferences(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, &want, prefs)

	require.NoError(t, store.PutPreferences(ctx, "u-1", identity.Preferences{}))
	prefs, err = store.Preferences(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, prefs.BudgetMax)
	assert.Empty(t, prefs.CarTypes)
}

func TestSQLiteStore_Sessions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.PutProfile(ctx, identity.Profile{UserID: "u-1", FullName: "Ada", Email: "ada@example.com"}))
	token, err := store.CreateSession(ctx, "u-1", time.Hour)
	require.NoError(t, err)

	u, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, token, u.AccessToken)

	_, err = store.Resolve(ctx, "not-a-token")
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
	_, err = store.Resolve(ctx, "")
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))

	now = now.Add(2 * time.Hour)
	_, err = store.Resolve(ctx, token)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
}

func TestSQLiteStore_OutboxRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Millisecond)

	job := &notify.Job{
		ID:        "job-1",
		DedupeKey: "b-1",
		Confirmation: booking.Confirmation{
			BookingID:    "b-1",
			ContactEmail: "ada@example.com",
			Location:     booking.Location{Key: "north", Name: "North Dallas Toyota"},
			Start:        created,
			VehicleModel: "RAV4",
		},
		Status:    notify.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, store.UpsertOutboxJob(ctx, job))

	job.Status = notify.StatusFailed
	job.Error = "smtp down"
	require.NoError(t, store.UpsertOutboxJob(ctx, job))

	all, err := store.LoadOutboxJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, notify.StatusFailed, all[0].Status)
	assert.Equal(t, "smtp down", all[0].Error)
	assert.Equal(t, "North Dallas Toyota", all[0].Confirmation.Location.Name)
	assert.True(t, all[0].Confirmation.Start.Equal(created))

	require.NoError(t, store.DeleteOutboxJob(ctx, "job-1"))
	all, err = store.LoadOutboxJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "carshop.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	seedTrims(t, store)
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rows, err := store.QueryTrims(context.Background(), catalog.TrimQuery{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestMigrationVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, migrationVersion("001_catalog.sql"))
	assert.Equal(t, 12, migrationVersion("12_x.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}
