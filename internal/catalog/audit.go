package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MimeLyc/carshop-agent/pkg/icron"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// AuditReport summarizes one sweep over rows whose drive_type still
// embeds a transmission.
type AuditReport struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Scanned     int       `json:"scanned"`
	Malformed   int       `json:"malformed"`
	Recoverable int       `json:"recoverable"`
	Repaired    int       `json:"repaired"`
	Error       string    `json:"error,omitempty"`
}

type AuditStatus struct {
	Schedule *icron.TriggerInfo `json:"schedule,omitempty"`
	Last     *AuditReport       `json:"last,omitempty"`
	Running  bool               `json:"running"`
}

// Auditor periodically sweeps the catalog for malformed drive_type values.
// Overlapping triggers share a single sweep.
type Auditor struct {
	store    RepairStore
	cronExpr string
	repair   bool
	now      func() time.Time
	logger   *log.Logger

	cron  *cron.Cron
	group singleflight.Group

	mu      sync.RWMutex
	last    *AuditReport
	running bool
}

type AuditorOption func(*Auditor)

// WithRepair makes sweeps write repaired values back to the store.
func WithRepair(enabled bool) AuditorOption {
	return func(a *Auditor) {
		a.repair = enabled
	}
}

func WithAuditClock(now func() time.Time) AuditorOption {
	return func(a *Auditor) {
		a.now = now
	}
}

func NewAuditor(store RepairStore, cronExpr string, opts ...AuditorOption) (*Auditor, error) {
	if err := icron.Validate(cronExpr); err != nil {
		return nil, err
	}
	a := &Auditor{
		store:    store,
		cronExpr: cronExpr,
		now:      time.Now,
		logger:   log.Named("catalog.audit"),
		cron:     cron.New(cron.WithParser(icron.Parser)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start schedules the sweep. It returns immediately.
func (a *Auditor) Start() error {
	_, err := a.cron.AddFunc(a.cronExpr, func() {
		if _, err := a.Run(context.Background()); err != nil {
			a.logger.Error("scheduled audit failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule audit: %w", err)
	}
	a.cron.Start()
	a.logger.Info("catalog audit scheduled with %q (repair=%v)", a.cronExpr, a.repair)
	return nil
}

func (a *Auditor) Stop() {
	<-a.cron.Stop().Done()
}

// Run performs one sweep now. Concurrent callers wait for and share the
// sweep already in flight.
func (a *Auditor) Run(ctx context.Context) (AuditReport, error) {
	v, err, _ := a.group.Do("audit", func() (any, error) {
		a.setRunning(true)
		defer a.setRunning(false)

		report, err := a.sweep(ctx)
		if err != nil {
			report.Error = err.Error()
		}
		a.mu.Lock()
		a.last = &report
		a.mu.Unlock()
		return report, err
	})
	report, _ := v.(AuditReport)
	return report, err
}

func (a *Auditor) Status() AuditStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := AuditStatus{Running: a.running}
	if a.last != nil {
		last := *a.last
		status.Last = &last
	}
	if info, err := icron.GetTriggerInfo(a.cronExpr, a.now()); err == nil {
		status.Schedule = info
	}
	return status
}

func (a *Auditor) setRunning(v bool) {
	a.mu.Lock()
	a.running = v
	a.mu.Unlock()
}

func (a *Auditor) sweep(ctx context.Context) (report AuditReport, err error) {
	report.StartedAt = a.now()
	defer func() { report.FinishedAt = a.now() }()

	rows, err := a.store.QueryTrims(ctx, TrimQuery{DriveType: "transmission"})
	if err != nil {
		return report, fmt.Errorf("query malformed rows: %w", err)
	}
	report.Scanned = len(rows)

	for _, row := range rows {
		if !HasEmbeddedTransmission(row.DriveType) {
			continue
		}
		report.Malformed++

		fixed := RepairRow(row)
		if fixed.Transmission != nil && SanitizeString(row.Transmission) == nil {
			report.Recoverable++
		}
		if !a.repair {
			continue
		}
		if err := a.store.UpdateTrimDrivetrain(ctx, row.TrimID, fixed.DriveType, fixed.Transmission); err != nil {
			return report, fmt.Errorf("repair trim %d: %w", row.TrimID, err)
		}
		report.Repaired++
	}

	a.logger.Info("audit scanned=%d malformed=%d recoverable=%d repaired=%d",
		report.Scanned, report.Malformed, report.Recoverable, report.Repaired)
	return report, nil
}
