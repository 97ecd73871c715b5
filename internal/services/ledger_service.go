package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"oshikakeibo/internal/amqp"
	"oshikakeibo/internal/cache"
	"oshikakeibo/internal/core"
	"oshikakeibo/internal/importexport"
	"oshikakeibo/internal/ledger"
	applog "oshikakeibo/internal/log"
	"oshikakeibo/internal/metrics"
	"oshikakeibo/internal/notify"
	"oshikakeibo/internal/sheets"
	"oshikakeibo/internal/storage"
	"oshikakeibo/internal/store/memory"
)

// ErrUnavailable is returned by operations whose backing integration is not configured.
var ErrUnavailable = errors.New("not configured")

type (
	// Publisher delivers newly derived notifications.
	Publisher interface {
		PublishNotification(ctx context.Context, msg *amqp.NotificationMessage) error
	}

	// Archive keeps snapshots and expired event budgets.
	Archive interface {
		Ping(ctx context.Context) error
		SaveSnapshot(ctx context.Context, snap importexport.Snapshot, reason string) (storage.SnapshotInfo, error)
		ListSnapshots(ctx context.Context, limit int) ([]storage.SnapshotInfo, error)
		GetSnapshot(ctx context.Context, id int64) (importexport.Snapshot, error)
		LatestSnapshot(ctx context.Context) (importexport.Snapshot, error)
		ArchiveBudgets(ctx context.Context, budgets []core.Budget, archivedAt time.Time) error
		ListArchivedBudgets(ctx context.Context, personID int64) ([]storage.ArchivedBudget, error)
	}

	Options struct {
		// Now is the service clock. It should match the store's clock.
		Now       func() time.Time
		Settings  notify.Settings
		Archive   Archive
		Publisher Publisher
		Mirror    sheets.ExpenseMirror
		CacheSize int
		CacheTTL  time.Duration
	}

	// LedgerService ties the entity store to the derived views. Every
	// mutation goes through it so notifications are recomputed afterwards.
	LedgerService struct {
		store  *memory.Store
		feed   *notify.Feed
		now    func() time.Time
		views  *cache.LRUCache[any]
		logger *applog.StructuredLogger

		archive   Archive
		publisher Publisher
		mirror    sheets.ExpenseMirror

		mu       sync.RWMutex
		settings notify.Settings

		// refreshMu serializes feed recomputes. refreshedOn is the day of
		// the last one.
		refreshMu   sync.Mutex
		refreshedOn string
	}
)

func NewLedgerService(store *memory.Store, opts Options) *LedgerService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &LedgerService{
		store:     store,
		feed:      notify.NewFeed(),
		now:       opts.Now,
		views:     cache.NewLRUCache[any](opts.CacheSize, opts.CacheTTL),
		logger:    applog.NewStructuredLogger(applog.New(applog.Config{Component: applog.ComponentLedger, Handler: slog.Default().Handler()})),
		archive:   opts.Archive,
		publisher: opts.Publisher,
		mirror:    opts.Mirror,
		settings:  opts.Settings,
	}
}

// Now returns the service clock's current time.
func (s *LedgerService) Now() time.Time {
	return s.now()
}

func (s *LedgerService) Settings() notify.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the notification toggles and recomputes the feed.
func (s *LedgerService) UpdateSettings(ctx context.Context, settings notify.Settings) notify.Settings {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.Refresh(ctx)
	return settings
}

// Notifications returns the current merged feed, recomputed first when the
// day changed since the last recompute.
func (s *LedgerService) Notifications(ctx context.Context) []notify.Notification {
	s.catchUp(ctx)
	return s.feed.List()
}

// catchUp runs a maintenance pass when the last refresh happened on an
// earlier day, so birthdays and event budgets follow the calendar between
// maintenance ticks.
func (s *LedgerService) catchUp(ctx context.Context) {
	today := core.DateOf(s.now()).String()
	s.refreshMu.Lock()
	stale := s.refreshedOn != today
	s.refreshMu.Unlock()
	if !stale {
		return
	}
	if _, err := s.RunMaintenance(ctx); err != nil {
		s.logger.LogError(ctx, "Maintenance on day change failed", err,
			applog.ComponentLedger, applog.OpExpire, nil)
	}
}

// Refresh derives notifications from the current state, replaces the feed
// and publishes whatever is new. Publish failures are logged only.
func (s *LedgerService) Refresh(ctx context.Context) []notify.Notification {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	st := s.store.State()
	now := s.now()
	settings := s.Settings()
	s.refreshedOn = core.DateOf(now).String()

	added := s.feed.Replace(
		notify.BudgetNotifications(st.Budgets, st.Expenses, st.People, now, settings),
		notify.BirthdayNotifications(st.People, now, settings),
	)
	for _, n := range added {
		metrics.NotificationDerived(string(n.Kind))
		slog.InfoContext(ctx, "Notification derived",
			applog.FieldNotificationKind, n.Kind,
			applog.FieldPersonID, n.PersonID)
		if s.publisher == nil {
			continue
		}
		err := s.publisher.PublishNotification(ctx, amqp.NewNotificationMessage(n, now))
		metrics.NotificationPublished(err)
		if err != nil {
			s.logger.LogError(ctx, "Failed to publish notification", err,
				applog.ComponentAMQP, applog.OpNotify,
				applog.NewFields().With(applog.FieldPersonID, n.PersonID).With(applog.FieldNotificationKind, string(n.Kind)))
		}
	}
	return added
}

// People

func (s *LedgerService) People() []core.Person {
	return s.store.People()
}

func (s *LedgerService) Person(id int64) (core.Person, error) {
	return s.store.Person(id)
}

func (s *LedgerService) AddPerson(ctx context.Context, p core.Person) (core.Person, error) {
	stored, err := s.store.AddPerson(p)
	if err != nil {
		return core.Person{}, err
	}
	slog.InfoContext(ctx, "Person added", applog.FieldPersonID, stored.ID, "name", stored.Name)
	s.Refresh(ctx)
	return stored, nil
}

func (s *LedgerService) UpdatePerson(ctx context.Context, id int64, patch core.PersonPatch) (core.Person, error) {
	p, err := s.store.UpdatePerson(id, patch)
	if err != nil {
		return core.Person{}, err
	}
	s.Refresh(ctx)
	return p, nil
}

// DeletePerson removes the person with everything that references them.
func (s *LedgerService) DeletePerson(ctx context.Context, id int64) (memory.Removed, error) {
	removed, err := s.store.DeletePerson(id)
	if err != nil {
		return memory.Removed{}, err
	}
	slog.InfoContext(ctx, "Person deleted",
		applog.FieldPersonID, id,
		"expenses", removed.Expenses,
		"budgets", removed.Budgets,
		"events", removed.Events)
	s.Refresh(ctx)
	return removed, nil
}

// Expenses

func (s *LedgerService) Expenses() []core.Expense {
	return s.store.Expenses()
}

func (s *LedgerService) Expense(id int64) (core.Expense, error) {
	return s.store.Expense(id)
}

// AddExpense stores the expense and mirrors it to the spreadsheet when one
// is configured. Mirror failures do not fail the request.
func (s *LedgerService) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	stored, err := s.store.AddExpense(e)
	if err != nil {
		return core.Expense{}, err
	}
	s.logger.LogExpenseCreated(ctx, stored.ID, stored.PersonID, stored.Amount, string(stored.Category))
	s.mirrorExpenses(ctx, []core.Expense{stored})
	s.Refresh(ctx)
	return stored, nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, id int64, e core.Expense) (core.Expense, error) {
	stored, err := s.store.UpdateExpense(id, e)
	if err != nil {
		return core.Expense{}, err
	}
	s.Refresh(ctx)
	return stored, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.store.DeleteExpense(id); err != nil {
		return err
	}
	s.Refresh(ctx)
	return nil
}

// ImportCSV parses r and appends the accepted rows. Rows without a usable
// personId go to fallbackPersonID, or to the first person when it is zero.
func (s *LedgerService) ImportCSV(ctx context.Context, r io.Reader, fallbackPersonID int64) (importexport.Result, error) {
	if fallbackPersonID == 0 {
		if people := s.store.People(); len(people) > 0 {
			fallbackPersonID = people[0].ID
		}
	}
	res, err := importexport.ImportExpenses(r, importexport.Options{
		FallbackPersonID: fallbackPersonID,
		Now:              s.now(),
		IDs:              s.store,
		KnownPerson:      s.store.HasPerson,
	})
	if err != nil {
		return res, fmt.Errorf("import expenses: %w", err)
	}
	// People can be deleted while the text is parsed; the store checks again.
	stored, rejected := s.store.ImportExpenses(res.Imported)
	res.Reject(rejected, func(e core.Expense) error {
		return fmt.Errorf("%w: unknown person %d", core.ErrMissingPerson, e.PersonID)
	})
	res.Imported = stored

	metrics.ImportRows(len(res.Imported), len(res.Errors), len(res.Warnings))
	s.logger.LogImport(ctx, len(res.Imported), len(res.Errors), len(res.Warnings))

	s.mirrorExpenses(ctx, res.Imported)
	s.Refresh(ctx)
	return res, nil
}

func (s *LedgerService) mirrorExpenses(ctx context.Context, expenses []core.Expense) {
	if s.mirror == nil || len(expenses) == 0 {
		return
	}
	ref, err := s.mirror.AppendExpenses(ctx, sheets.Rows(s.store.People(), expenses))
	metrics.ExpensesMirrored(len(expenses), err)
	if err != nil {
		s.logger.LogError(ctx, "Failed to mirror expenses", err,
			applog.ComponentSheets, applog.OpMirror,
			applog.NewFields().With(applog.FieldCount, len(expenses)))
		return
	}
	slog.InfoContext(ctx, "Expenses mirrored",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldCount, len(expenses),
		applog.FieldSheetsRef, ref)
}

// SyncMirror appends every stored expense the spreadsheet does not have yet
// and returns how many were written.
func (s *LedgerService) SyncMirror(ctx context.Context) (int, error) {
	if s.mirror == nil {
		return 0, fmt.Errorf("sheets mirror: %w", ErrUnavailable)
	}
	present, err := s.mirror.MirroredIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("read mirrored ids: %w", err)
	}
	var missing []core.Expense
	for _, e := range s.store.Expenses() {
		if !present[e.ID] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	_, err = s.mirror.AppendExpenses(ctx, sheets.Rows(s.store.People(), missing))
	metrics.ExpensesMirrored(len(missing), err)
	if err != nil {
		return 0, fmt.Errorf("append expenses: %w", err)
	}
	return len(missing), nil
}

// Budgets

// Budgets lists the stored budgets after expiring event budgets of earlier
// months.
func (s *LedgerService) Budgets(ctx context.Context) []core.Budget {
	s.catchUp(ctx)
	return s.store.Budgets()
}

// AddBudget stores the budget, merging it into an active budget of the same
// person and period. The flag reports a merge.
func (s *LedgerService) AddBudget(ctx context.Context, b core.Budget) (core.Budget, bool, error) {
	stored, merged, err := s.store.AddBudget(b)
	if err != nil {
		return core.Budget{}, false, err
	}
	slog.InfoContext(ctx, "Budget saved",
		applog.FieldBudgetID, stored.ID,
		applog.FieldPersonID, stored.PersonID,
		applog.FieldAmountYen, stored.Amount,
		"merged", merged)
	s.Refresh(ctx)
	return stored, merged, nil
}

func (s *LedgerService) DeleteBudget(ctx context.Context, id int64) error {
	if err := s.store.DeleteBudget(id); err != nil {
		return err
	}
	s.Refresh(ctx)
	return nil
}

// ArchivedBudgets lists expired event budgets kept in the archive.
func (s *LedgerService) ArchivedBudgets(ctx context.Context, personID int64) ([]storage.ArchivedBudget, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("archive: %w", ErrUnavailable)
	}
	return s.archive.ListArchivedBudgets(ctx, personID)
}

// Calendar

func (s *LedgerService) Events() []core.CalendarEvent {
	return s.store.Events()
}

func (s *LedgerService) AddEvent(ctx context.Context, ev core.CalendarEvent) (core.CalendarEvent, error) {
	stored, err := s.store.AddEvent(ev)
	if err != nil {
		return core.CalendarEvent{}, err
	}
	return stored, nil
}

func (s *LedgerService) DeleteEvent(ctx context.Context, id int64) error {
	return s.store.DeleteEvent(id)
}

// Calendar lists birthdays and custom events of one month. A zero personID
// includes everyone.
func (s *LedgerService) Calendar(year, month int, personID int64) []core.CalendarEvent {
	key := cache.Key("calendar", s.store.Revision(), year, month, personID)
	return cachedView(s, key, func() []core.CalendarEvent {
		st := s.store.State()
		return ledger.CalendarEvents(st.People, st.Events, year, month, personID)
	})
}

// Export, backup and restore

// Export takes a snapshot of the whole store.
func (s *LedgerService) Export() importexport.Snapshot {
	return importexport.ExportSnapshot(s.store.State(), s.now())
}

// ArchiveSnapshot stores the current state in the archive.
func (s *LedgerService) ArchiveSnapshot(ctx context.Context, reason string) (storage.SnapshotInfo, error) {
	if s.archive == nil {
		return storage.SnapshotInfo{}, fmt.Errorf("archive: %w", ErrUnavailable)
	}
	info, err := s.archive.SaveSnapshot(ctx, s.Export(), reason)
	if err != nil {
		return storage.SnapshotInfo{}, fmt.Errorf("save snapshot: %w", err)
	}
	slog.InfoContext(ctx, "Snapshot archived",
		applog.FieldSnapshotID, info.ID,
		applog.FieldOperation, applog.OpArchive,
		"reason", reason)
	return info, nil
}

func (s *LedgerService) ListSnapshots(ctx context.Context, limit int) ([]storage.SnapshotInfo, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("archive: %w", ErrUnavailable)
	}
	return s.archive.ListSnapshots(ctx, limit)
}

// RestoreSnapshot replaces the store with an archived snapshot. A zero id
// picks the most recent one.
func (s *LedgerService) RestoreSnapshot(ctx context.Context, id int64) (importexport.Snapshot, error) {
	if s.archive == nil {
		return importexport.Snapshot{}, fmt.Errorf("archive: %w", ErrUnavailable)
	}
	var (
		snap importexport.Snapshot
		err  error
	)
	if id == 0 {
		snap, err = s.archive.LatestSnapshot(ctx)
	} else {
		snap, err = s.archive.GetSnapshot(ctx, id)
	}
	if err != nil {
		return importexport.Snapshot{}, err
	}
	if err := s.Restore(ctx, snap); err != nil {
		return importexport.Snapshot{}, err
	}
	return snap, nil
}

// Restore replaces the store with snap, e.g. an uploaded JSON backup, and
// runs a maintenance pass so event budgets of earlier months expire.
func (s *LedgerService) Restore(ctx context.Context, snap importexport.Snapshot) error {
	if err := s.store.Restore(snap.State()); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	slog.InfoContext(ctx, "Store restored",
		applog.FieldOperation, applog.OpRestore,
		"people", len(snap.People),
		"expenses", len(snap.Expenses),
		"budgets", len(snap.Budgets))
	// The restore itself succeeded; a failed archive write keeps the budgets
	// for the next pass.
	if _, err := s.RunMaintenance(ctx); err != nil {
		s.logger.LogError(ctx, "Maintenance after restore failed", err,
			applog.ComponentLedger, applog.OpRestore, nil)
	}
	return nil
}

// Maintenance

// MaintenanceReport summarizes one maintenance pass.
type MaintenanceReport struct {
	ExpiredBudgets   int `json:"expiredBudgets"`
	NewNotifications int `json:"newNotifications"`
	CacheCleaned     int `json:"cacheCleaned"`
}

// RunMaintenance drops event budgets from earlier months, recomputes
// notifications and prunes expired cache entries. With an archive configured
// the budgets are archived first and stay in the store if that fails; the
// rest of the pass still runs and the archive error is returned.
func (s *LedgerService) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport
	now := s.now()

	var keep func([]core.Budget) error
	if s.archive != nil {
		keep = func(expired []core.Budget) error {
			return s.archive.ArchiveBudgets(ctx, expired, now)
		}
	}
	expired, expireErr := s.store.ExpireEventBudgets(now, keep)
	if expireErr != nil {
		expireErr = fmt.Errorf("archive expired budgets: %w", expireErr)
	}
	report.ExpiredBudgets = len(expired)
	if len(expired) > 0 {
		metrics.BudgetsExpired(len(expired))
		slog.InfoContext(ctx, "Event budgets expired",
			applog.FieldOperation, applog.OpExpire,
			applog.FieldCount, len(expired))
	}

	report.NewNotifications = len(s.Refresh(ctx))
	report.CacheCleaned = s.views.CleanExpired()
	return report, expireErr
}

// Ready reports whether configured dependencies respond.
func (s *LedgerService) Ready(ctx context.Context) error {
	if s.archive != nil {
		if err := s.archive.Ping(ctx); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}

// CacheStats exposes the view cache counters.
func (s *LedgerService) CacheStats() cache.Stats {
	return s.views.Stats()
}

func cachedView[T any](s *LedgerService, key string, compute func() T) T {
	computed := false
	v, _ := cache.GetOrCompute[any](s.views, key, func() (any, error) {
		computed = true
		return compute(), nil
	})
	metrics.CacheLookup(!computed)
	return v.(T)
}
