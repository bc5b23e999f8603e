package lamp

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nerrad567/lampfleet-core/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/lampfleet-core/internal/wire"
)

type testRepos struct {
	db      *sql.DB
	lamps   *SQLiteRepository
	metrics *SQLiteMetricRepository
	alerts  *SQLiteAlertRepository
}

func setupRepos(t *testing.T) testRepos {
	t.Helper()
	db := dbtest.Open(t).DB
	return testRepos{
		db:      db,
		lamps:   NewSQLiteRepository(db),
		metrics: NewSQLiteMetricRepository(db),
		alerts:  NewSQLiteAlertRepository(db),
	}
}

func createLamp(t *testing.T, repo Repository, l *Lamp) *Lamp {
	t.Helper()
	if err := repo.Create(context.Background(), l); err != nil {
		t.Fatalf("Create(%s) error = %v", l.ID, err)
	}
	return l
}

func strp(s string) *string { return &s }

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	l := New("lamp-1")
	l.Name = "Desk"
	l.OwnerID = strp("alice")
	l.LED = Channels{Red: 10, Green: 20, Blue: 30, WarmWhite: 40, ColdWhite: 50, NeutralWhite: 60}
	l.AmbientLight = intp(350)
	l.ActiveModeID = intp(0)
	l.ModesConfig = `[{"mode_id":0,"name":"Mode 0","type":"disco","disco":{"pattern":"OFF","speed":0,"intensity":0}}]`
	l.CircadianEnabled = true
	l.TokenHash = HashToken("secret")
	createLamp(t, r.lamps, l)

	got, err := r.lamps.GetByID(ctx, "lamp-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Desk" || got.OwnerID == nil || *got.OwnerID != "alice" {
		t.Errorf("identity = %q owner %v", got.Name, got.OwnerID)
	}
	if got.LED != l.LED {
		t.Errorf("LED = %+v, want %+v", got.LED, l.LED)
	}
	if got.AmbientLight == nil || *got.AmbientLight != 350 || got.AmbientNoise != nil {
		t.Errorf("ambient = %v / %v", got.AmbientLight, got.AmbientNoise)
	}
	if got.ActiveModeID == nil || *got.ActiveModeID != 0 {
		t.Errorf("ActiveModeID = %v, want 0", got.ActiveModeID)
	}
	if got.ModesConfig != l.ModesConfig || got.TokenHash != l.TokenHash {
		t.Error("modes config or token hash not persisted")
	}
	if !got.CircadianEnabled || got.AdaptiveBrightnessEnabled {
		t.Errorf("toggles = %v, %v", got.CircadianEnabled, got.AdaptiveBrightnessEnabled)
	}
	if got.Brightness != DefaultBrightness || got.Color != DefaultColor || got.ReportInterval != DefaultReportInterval {
		t.Errorf("defaults = %d %q %d", got.Brightness, got.Color, got.ReportInterval)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestSQLiteRepository_Errors(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	createLamp(t, r.lamps, New("lamp-1"))

	if err := r.lamps.Create(ctx, New("lamp-1")); !errors.Is(err, ErrLampExists) {
		t.Errorf("Create(duplicate) error = %v, want ErrLampExists", err)
	}
	if _, err := r.lamps.GetByID(ctx, "ghost"); !errors.Is(err, ErrLampNotFound) {
		t.Errorf("GetByID(ghost) error = %v, want ErrLampNotFound", err)
	}
	if err := r.lamps.Save(ctx, New("ghost")); !errors.Is(err, ErrLampNotFound) {
		t.Errorf("Save(ghost) error = %v, want ErrLampNotFound", err)
	}
}

func TestSQLiteRepository_SaveClearsNullables(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	l := New("lamp-1")
	l.ActiveModeID = intp(4)
	l.FleetID = strp("fleet-9")
	createLamp(t, r.lamps, l)

	l.ActiveModeID = nil
	l.FleetID = nil
	l.Brightness = 70
	if err := r.lamps.Save(ctx, l); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, _ := r.lamps.GetByID(ctx, "lamp-1")
	if got.ActiveModeID != nil || got.FleetID != nil {
		t.Errorf("nullables not cleared: mode %v fleet %v", got.ActiveModeID, got.FleetID)
	}
	if got.Brightness != 70 {
		t.Errorf("Brightness = %d, want 70", got.Brightness)
	}
}

func TestSQLiteRepository_Lists(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	for _, l := range []*Lamp{
		{ID: "c", Online: true, On: true, OwnerID: strp("bob")},
		{ID: "a", Online: true, On: false, OwnerID: strp("alice")},
		{ID: "b", Online: false, On: true, OwnerID: strp("alice")},
		{ID: "d", Online: true, On: true},
	} {
		l.Color = DefaultColor
		createLamp(t, r.lamps, l)
	}

	tests := []struct {
		name string
		list func() ([]Lamp, error)
		want []string
	}{
		{"all", func() ([]Lamp, error) { return r.lamps.List(ctx) }, []string{"a", "b", "c", "d"}},
		{"by owner", func() ([]Lamp, error) { return r.lamps.ListByOwner(ctx, "alice") }, []string{"a", "b"}},
		{"online", func() ([]Lamp, error) { return r.lamps.ListOnline(ctx) }, []string{"a", "c", "d"}},
		{"active", func() ([]Lamp, error) { return r.lamps.ListActive(ctx) }, []string{"c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lamps, err := tt.list()
			if err != nil {
				t.Fatalf("list error = %v", err)
			}
			var ids []string
			for _, l := range lamps {
				ids = append(ids, l.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}

func TestSQLiteRepository_Reprovision(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	l := createLamp(t, r.lamps, New("lamp-1"))
	createLamp(t, r.lamps, New("lamp-2"))

	for _, id := range []string{"lamp-1", "lamp-2"} {
		if err := r.metrics.Append(ctx, &Metric{LampID: id, Temperatures: "20"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := r.alerts.ReplaceActive(ctx, id, []Alert{{DeviceAlertID: 1, Message: "hot"}}); err != nil {
			t.Fatalf("ReplaceActive() error = %v", err)
		}
	}

	l.OwnerID = strp("carol")
	if err := r.lamps.Reprovision(ctx, l); err != nil {
		t.Fatalf("Reprovision() error = %v", err)
	}

	if _, err := r.metrics.Latest(ctx, "lamp-1"); !errors.Is(err, ErrNoMetrics) {
		t.Errorf("Latest(lamp-1) error = %v, want ErrNoMetrics", err)
	}
	if alerts, _ := r.alerts.ListActive(ctx, "lamp-1"); len(alerts) != 0 {
		t.Errorf("lamp-1 alerts = %d, want 0", len(alerts))
	}
	if _, err := r.metrics.Latest(ctx, "lamp-2"); err != nil {
		t.Errorf("lamp-2 metrics wiped: %v", err)
	}
	got, _ := r.lamps.GetByID(ctx, "lamp-1")
	if got.OwnerID == nil || *got.OwnerID != "carol" {
		t.Errorf("OwnerID = %v, want carol", got.OwnerID)
	}
}

func TestSQLiteMetricRepository(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	createLamp(t, r.lamps, New("lamp-1"))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		m := &Metric{
			LampID:          "lamp-1",
			Timestamp:       base.Add(time.Duration(i) * time.Second),
			DeviceTimestamp: int64(1000 + i),
			UptimeSeconds:   int64(i),
			Temperatures:    JoinTemperatures([]float64{20 + float64(i), 30}),
			AmbientLight:    i * 100,
			Abnormal:        i == 4,
		}
		if err := r.metrics.Append(ctx, m); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if m.ID == 0 {
			t.Fatal("Append() did not set ID")
		}
	}

	latest, err := r.metrics.Latest(ctx, "lamp-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.DeviceTimestamp != 1004 || !latest.Abnormal || latest.Temperatures != "24,30" {
		t.Errorf("Latest() = %+v", latest)
	}
	if !latest.Timestamp.Equal(base.Add(4 * time.Second)) {
		t.Errorf("Timestamp = %v", latest.Timestamp)
	}

	recent, err := r.metrics.Recent(ctx, "lamp-1", 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 3 || recent[0].UptimeSeconds != 4 || recent[2].UptimeSeconds != 2 {
		t.Errorf("Recent() order wrong: %+v", recent)
	}

	if _, err := r.metrics.Latest(ctx, "lamp-9"); !errors.Is(err, ErrNoMetrics) {
		t.Errorf("Latest(unknown) error = %v, want ErrNoMetrics", err)
	}
}

func TestSQLiteAlertRepository_ReplaceActive(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	createLamp(t, r.lamps, New("lamp-1"))

	first := []Alert{
		{DeviceAlertID: 1, Cause: wire.CauseWifi, Level: wire.LevelWarning, Message: "weak signal"},
		{DeviceAlertID: 2, Cause: wire.CauseHardware, Level: wire.LevelCritical, Message: "fan"},
	}
	if err := r.alerts.ReplaceActive(ctx, "lamp-1", first); err != nil {
		t.Fatalf("ReplaceActive() error = %v", err)
	}

	second := []Alert{{DeviceAlertID: 7, Cause: wire.CauseOTAUpdate, Level: wire.LevelInfo, Message: "updating"}}
	if err := r.alerts.ReplaceActive(ctx, "lamp-1", second); err != nil {
		t.Fatalf("ReplaceActive() error = %v", err)
	}

	got, err := r.alerts.ListActive(ctx, "lamp-1")
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(got))
	}
	a := got[0]
	if a.DeviceAlertID != 7 || a.Cause != wire.CauseOTAUpdate || a.Level != wire.LevelInfo || !a.Active {
		t.Errorf("alert = %+v", a)
	}

	if err := r.alerts.ReplaceActive(ctx, "lamp-1", nil); err != nil {
		t.Fatalf("ReplaceActive(nil) error = %v", err)
	}
	if got, _ := r.alerts.ListActive(ctx, "lamp-1"); len(got) != 0 {
		t.Errorf("alerts after clear = %d, want 0", len(got))
	}
}

func TestSQLiteAlertRepository_ReplaceActiveRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM lamp_alerts").
		WithArgs("lamp-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO lamp_alerts").
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectExec("INSERT INTO lamp_alerts").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	repo := NewSQLiteAlertRepository(db)
	err = repo.ReplaceActive(context.Background(), "lamp-1", []Alert{
		{DeviceAlertID: 1, Message: "a"},
		{DeviceAlertID: 2, Message: "b"},
	})
	if err == nil {
		t.Fatal("ReplaceActive() error = nil, want insert failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}
