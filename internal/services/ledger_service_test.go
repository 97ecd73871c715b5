package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"oshikakeibo/internal/amqp"
	"oshikakeibo/internal/core"
	"oshikakeibo/internal/importexport"
	"oshikakeibo/internal/notify"
	sheetsmem "oshikakeibo/internal/sheets/memory"
	"oshikakeibo/internal/storage"
	"oshikakeibo/internal/store/memory"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.NotificationMessage
	err  error
}

func (p *fakePublisher) PublishNotification(_ context.Context, msg *amqp.NotificationMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) kinds() []notify.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Kind, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc       *LedgerService
	store     *memory.Store
	clock     *clock
	publisher *fakePublisher
	mirror    *sheetsmem.Mirror
	archive   *storage.SQLiteRepository
}

func newFixture(t *testing.T, withArchive bool) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)}
	f := &fixture{
		store:     memory.New(memory.WithClock(c.Now)),
		clock:     c,
		publisher: &fakePublisher{},
		mirror:    sheetsmem.New(),
	}
	opts := Options{
		Now:       c.Now,
		Settings:  notify.DefaultSettings(),
		Publisher: f.publisher,
		Mirror:    f.mirror,
	}
	if withArchive {
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "archive.db"))
		if err != nil {
			t.Fatalf("open archive: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		f.archive = repo
		opts.Archive = repo
	}
	f.svc = NewLedgerService(f.store, opts)
	return f
}

func (f *fixture) person(t *testing.T, name string) core.Person {
	t.Helper()
	p, err := f.svc.AddPerson(context.Background(), core.Person{Name: name, Genre: core.GenreIdol})
	if err != nil {
		t.Fatalf("add person: %v", err)
	}
	return p
}

func TestBudgetNotificationsArePublishedOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.person(t, "アイドル太郎")

	if _, _, err := f.svc.AddBudget(ctx, core.Budget{PersonID: p.ID, Amount: 10000, Period: core.PeriodMonthly}); err != nil {
		t.Fatalf("add budget: %v", err)
	}
	if _, err := f.svc.AddExpense(ctx, core.Expense{Amount: 8500, Category: core.CategoryTicket, PersonID: p.ID}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	list := f.svc.Notifications(ctx)
	if len(list) != 1 || list[0].Kind != notify.KindBudgetWarning {
		t.Fatalf("expected one warning, got %+v", list)
	}

	// Recomputing without change publishes nothing new.
	f.svc.Refresh(ctx)
	f.svc.Refresh(ctx)
	if got := f.publisher.kinds(); len(got) != 1 {
		t.Fatalf("expected 1 published message, got %v", got)
	}

	// Escalation to exceeded is new.
	if _, err := f.svc.AddExpense(ctx, core.Expense{Amount: 2000, Category: core.CategoryGoods, PersonID: p.ID}); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	got := f.publisher.kinds()
	if len(got) != 2 || got[1] != notify.KindBudgetExceeded {
		t.Fatalf("expected escalation to be published, got %v", got)
	}
	if len(f.svc.Notifications(ctx)) != 1 {
		t.Fatalf("feed must not accumulate duplicates: %+v", f.svc.Notifications(ctx))
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t, false)
	f.publisher.err = errors.New("broker down")
	ctx := context.Background()
	p := f.person(t, "みくにゃん")

	f.svc.AddBudget(ctx, core.Budget{PersonID: p.ID, Amount: 1000, Period: core.PeriodMonthly})
	if _, err := f.svc.AddExpense(ctx, core.Expense{Amount: 1000, Category: core.CategoryCafe, PersonID: p.ID}); err != nil {
		t.Fatalf("expense should be stored despite publish failure: %v", err)
	}
	if len(f.svc.Expenses()) != 1 {
		t.Fatal("expense missing")
	}
}

func TestSettingsDisableNotifications(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	bday := core.NewDate(2000, 6, 15)
	if _, err := f.svc.AddPerson(ctx, core.Person{Name: "みくにゃん", Genre: core.GenreVTuber, Birthday: &bday}); err != nil {
		t.Fatal(err)
	}
	if n := f.svc.Notifications(ctx); len(n) != 1 || n[0].Kind != notify.KindBirthday {
		t.Fatalf("expected birthday notification, got %+v", n)
	}

	f.svc.UpdateSettings(ctx, notify.Settings{BudgetAlerts: true, BirthdayReminders: false})
	if n := f.svc.Notifications(ctx); len(n) != 0 {
		t.Fatalf("expected no notifications, got %+v", n)
	}
	if f.svc.Settings().BirthdayReminders {
		t.Fatal("settings not stored")
	}
}

func TestAddExpenseMirrors(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.person(t, "みくにゃん")

	e, err := f.svc.AddExpense(ctx, core.Expense{Amount: 3500, Category: core.CategoryGoods, PersonID: p.ID, Note: "アクリルスタンド"})
	if err != nil {
		t.Fatal(err)
	}
	rows := f.mirror.Rows()
	if len(rows) != 1 || rows[0].ID != e.ID || rows[0].PersonName != "みくにゃん" {
		t.Fatalf("unexpected mirrored rows: %+v", rows)
	}
	if !e.Date.Equal(core.NewDate(2025, 6, 15).Time) {
		t.Fatalf("expected today's date, got %v", e.Date)
	}
}

func TestSyncMirrorAppendsMissing(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.person(t, "みくにゃん")

	// Stored directly, so the mirror has not seen them.
	f.store.AddExpense(core.Expense{Amount: 100, Category: core.CategoryCafe, PersonID: p.ID})
	f.store.AddExpense(core.Expense{Amount: 200, Category: core.CategoryCafe, PersonID: p.ID})

	n, err := f.svc.SyncMirror(ctx)
	if err != nil || n != 2 {
		t.Fatalf("SyncMirror = %d, %v", n, err)
	}
	n, err = f.svc.SyncMirror(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second SyncMirror = %d, %v", n, err)
	}
}

func TestImportCSV(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.person(t, "みくにゃん")

	csv := "amount,date,category,personId,note\n" +
		"3500,2025-06-10,グッズ代," + strconv.FormatInt(p.ID, 10) + ",アクスタ\n" +
		"abc,,,,\n" +
		"100,2025-06-01,チケット代,999,\n" +
		"1,2\n"
	res, err := f.svc.ImportCSV(ctx, strings.NewReader(csv), 0)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Imported) != 2 {
		t.Fatalf("expected 2 imported rows, got %+v", res.Imported)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected unknown person and short row errors, got %+v", res.Errors)
	}
	// The defaulted row goes to the first person.
	if res.Imported[1].PersonID != p.ID || res.Imported[1].Amount != 0 {
		t.Fatalf("unexpected defaulted row: %+v", res.Imported[1])
	}
	if len(f.svc.Expenses()) != 2 || len(f.mirror.Rows()) != 2 {
		t.Fatalf("imported rows should be stored and mirrored")
	}
	if res.Imported[0].ID == res.Imported[1].ID {
		t.Fatal("imported ids must be unique")
	}
}

func TestDashboardAndAnalytics(t *testing.T) {
	f := newFixture(t, false)
	if err := memory.SeedDemo(f.store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.svc.Refresh(context.Background())

	d := f.svc.Dashboard(context.Background())
	if d.MonthTotal != 23500 {
		t.Fatalf("month total = %d, want 23500", d.MonthTotal)
	}
	if len(d.People) != 2 {
		t.Fatalf("expected 2 people, got %d", len(d.People))
	}
	miku := d.People[0]
	if miku.Usage.TotalBudget != 10000 || miku.TotalMonth != 15500 {
		t.Fatalf("unexpected summary: %+v", miku)
	}

	// Cached until a mutation.
	again := f.svc.Dashboard(context.Background())
	if again.MonthTotal != d.MonthTotal || f.svc.CacheStats().Hits == 0 {
		t.Fatalf("expected cache hit, stats %+v", f.svc.CacheStats())
	}
	if _, err := f.svc.AddExpense(context.Background(), core.Expense{Amount: 500, Category: core.CategoryCafe, PersonID: miku.Person.ID}); err != nil {
		t.Fatal(err)
	}
	if got := f.svc.Dashboard(context.Background()).MonthTotal; got != 24000 {
		t.Fatalf("dashboard should reflect the mutation, got %d", got)
	}

	a, err := f.svc.Analytics(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Monthly) != 6 || a.Monthly[5].Label != "6月" || a.Monthly[5].Total != 24000 {
		t.Fatalf("unexpected series: %+v", a.Monthly)
	}
	if len(a.Categories) != 4 || a.Categories[0].Category != core.CategoryTicket {
		t.Fatalf("unexpected categories: %+v", a.Categories)
	}
	if !strings.Contains(a.ShareText, "¥24,000") {
		t.Fatalf("unexpected share text: %q", a.ShareText)
	}

	one, err := f.svc.Analytics(miku.Person.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if one.MonthTotal != 16000 || len(one.Monthly) != 3 {
		t.Fatalf("unexpected per-person analytics: %+v", one)
	}

	if _, err := f.svc.Analytics(999, 0); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMaintenanceExpiresAndArchives(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.person(t, "アイドル太郎")

	if _, _, err := f.svc.AddBudget(ctx, core.Budget{PersonID: p.ID, Amount: 5000, Period: core.PeriodEvent}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.svc.AddBudget(ctx, core.Budget{PersonID: p.ID, Amount: 10000, Period: core.PeriodMonthly}); err != nil {
		t.Fatal(err)
	}

	report, err := f.svc.RunMaintenance(ctx)
	if err != nil || report.ExpiredBudgets != 0 {
		t.Fatalf("nothing should expire yet: %+v %v", report, err)
	}

	f.clock.Set(time.Date(2025, 7, 1, 0, 0, 1, 0, time.UTC))
	report, err = f.svc.RunMaintenance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.ExpiredBudgets != 1 {
		t.Fatalf("expected 1 expired budget, got %+v", report)
	}
	if len(f.svc.Budgets(ctx)) != 1 || f.svc.Budgets(ctx)[0].Period != core.PeriodMonthly {
		t.Fatalf("only the monthly budget should remain: %+v", f.svc.Budgets(ctx))
	}
	archived, err := f.svc.ArchivedBudgets(ctx, p.ID)
	if err != nil || len(archived) != 1 || archived[0].Amount != 5000 {
		t.Fatalf("archived = %+v, %v", archived, err)
	}
}

func TestSnapshotArchiveAndRestore(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p := f.person(t, "みくにゃん")
	f.svc.AddExpense(ctx, core.Expense{Amount: 3500, Category: core.CategoryGoods, PersonID: p.ID})

	info, err := f.svc.ArchiveSnapshot(ctx, "manual")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if info.People != 1 || info.Expenses != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, err := f.svc.DeletePerson(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if len(f.svc.Expenses()) != 0 {
		t.Fatal("cascade should remove expenses")
	}

	if _, err := f.svc.RestoreSnapshot(ctx, 0); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(f.svc.People()) != 1 || len(f.svc.Expenses()) != 1 {
		t.Fatalf("restore did not bring data back")
	}

	list, err := f.svc.ListSnapshots(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSnapshots = %+v, %v", list, err)
	}
	if err := f.svc.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
}

func TestArchiveUnavailable(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	if _, err := f.svc.ArchiveSnapshot(ctx, "manual"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := f.svc.RestoreSnapshot(ctx, 0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := f.svc.Ready(ctx); err != nil {
		t.Fatalf("ready without archive should pass: %v", err)
	}
}

func TestCalendar(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	bday := core.NewDate(2000, 6, 20)
	p, _ := f.svc.AddPerson(ctx, core.Person{Name: "みくにゃん", Genre: core.GenreVTuber, Birthday: &bday})
	if _, err := f.svc.AddEvent(ctx, core.CalendarEvent{Title: "ライブ", Day: 3, Month: 6, Year: 2025, PersonID: p.ID, Type: core.EventCustom}); err != nil {
		t.Fatal(err)
	}

	events := f.svc.Calendar(2025, 6, 0)
	if len(events) != 2 || events[0].Title != "ライブ" || events[1].Title != "みくにゃんの誕生日" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if got := f.svc.Calendar(2025, 7, 0); len(got) != 0 {
		t.Fatalf("expected no events in July, got %+v", got)
	}
}

type failingArchive struct {
	*storage.SQLiteRepository
	err error
}

func (a failingArchive) ArchiveBudgets(context.Context, []core.Budget, time.Time) error {
	return a.err
}

func TestMaintenanceKeepsBudgetsWhenArchiveFails(t *testing.T) {
	f := newFixture(t, true)
	diskFull := errors.New("disk full")
	f.svc.archive = failingArchive{SQLiteRepository: f.archive, err: diskFull}
	ctx := context.Background()
	p := f.person(t, "アイドル太郎")

	if _, _, err := f.svc.AddBudget(ctx, core.Budget{PersonID: p.ID, Amount: 5000, Period: core.PeriodEvent}); err != nil {
		t.Fatal(err)
	}
	f.clock.Set(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC))

	report, err := f.svc.RunMaintenance(ctx)
	if !errors.Is(err, diskFull) {
		t.Fatalf("expected archive error, got %v", err)
	}
	if report.ExpiredBudgets != 0 {
		t.Fatalf("nothing may count as expired: %+v", report)
	}
	if left := f.store.Budgets(); len(left) != 1 || left[0].Amount != 5000 {
		t.Fatalf("budget must stay in the store: %+v", left)
	}

	// Once the archive works again the budget moves over.
	f.svc.archive = f.archive
	report, err = f.svc.RunMaintenance(ctx)
	if err != nil || report.ExpiredBudgets != 1 || len(f.store.Budgets()) != 0 {
		t.Fatalf("retry: report=%+v err=%v left=%+v", report, err, f.store.Budgets())
	}
	archived, err := f.svc.ArchivedBudgets(ctx, p.ID)
	if err != nil || len(archived) != 1 {
		t.Fatalf("archived = %+v, %v", archived, err)
	}
}

func TestNotificationsFollowTheDayChange(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.clock.Set(time.Date(2025, 7, 15, 23, 0, 0, 0, time.UTC))
	bday := core.NewDate(2001, 7, 15)
	if _, err := f.svc.AddPerson(ctx, core.Person{Name: "miku", Genre: core.GenreVTuber, Birthday: &bday}); err != nil {
		t.Fatal(err)
	}
	if n := f.svc.Notifications(ctx); len(n) != 1 || n[0].Kind != notify.KindBirthday {
		t.Fatalf("expected today's birthday, got %+v", n)
	}

	f.clock.Set(time.Date(2025, 7, 16, 9, 0, 0, 0, time.UTC))
	if n := f.svc.Notifications(ctx); len(n) != 0 {
		t.Fatalf("yesterday's birthday must be gone, got %+v", n)
	}
	if d := f.svc.Dashboard(ctx); len(d.Notifications) != 0 {
		t.Fatalf("dashboard shows stale notifications: %+v", d.Notifications)
	}

	f.clock.Set(time.Date(2026, 7, 15, 0, 0, 1, 0, time.UTC))
	if d := f.svc.Dashboard(ctx); len(d.Notifications) != 1 {
		t.Fatalf("birthday must come back the next year: %+v", d.Notifications)
	}
}

func TestBudgetsExpireOnMonthChange(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.person(t, "アイドル太郎")
	if _, _, err := f.svc.AddBudget(ctx, core.Budget{PersonID: p.ID, Amount: 5000, Period: core.PeriodEvent}); err != nil {
		t.Fatal(err)
	}
	if len(f.svc.Budgets(ctx)) != 1 {
		t.Fatal("event budget of this month must be listed")
	}
	f.clock.Set(time.Date(2025, 7, 2, 8, 0, 0, 0, time.UTC))
	if b := f.svc.Budgets(ctx); len(b) != 0 {
		t.Fatalf("last month's event budget must expire: %+v", b)
	}
}

func TestRestoreExpiresOldEventBudgets(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	march := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	snap := importexport.Snapshot{
		People: []core.Person{{ID: 1, Name: "みくにゃん", Genre: core.GenreVTuber}},
		Budgets: []core.Budget{
			{ID: 2, PersonID: 1, Amount: 5000, Period: core.PeriodEvent, CreatedAt: march},
			{ID: 3, PersonID: 1, Amount: 10000, Period: core.PeriodMonthly, CreatedAt: march},
		},
		ExportedAt: march,
	}
	if err := f.svc.Restore(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	left := f.store.Budgets()
	if len(left) != 1 || left[0].ID != 3 {
		t.Fatalf("only the monthly budget should survive the restore: %+v", left)
	}
}

func TestImportCSVDropsRowsOfPeopleDeletedMeanwhile(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	keep := f.person(t, "みくにゃん")
	gone := f.person(t, "アイドル太郎")

	csv := "amount,date,category,personId,note\n" +
		"100,2025-06-01,カフェ代," + strconv.FormatInt(keep.ID, 10) + ",\n" +
		"200,2025-06-01,カフェ代," + strconv.FormatInt(gone.ID, 10) + ",\n"
	// Deleting the person once the text has been read stands in for a
	// concurrent DELETE between parsing and appending.
	r := &deleteAfterRead{r: strings.NewReader(csv), onEOF: func() {
		if _, err := f.svc.DeletePerson(ctx, gone.ID); err != nil {
			t.Errorf("delete person: %v", err)
		}
	}}
	res, err := f.svc.ImportCSV(ctx, r, 0)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Imported) != 1 || res.Imported[0].PersonID != keep.ID {
		t.Fatalf("imported = %+v", res.Imported)
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 3 || !errors.Is(res.Errors[0], core.ErrMissingPerson) {
		t.Fatalf("errors = %+v", res.Errors)
	}
	for _, e := range f.svc.Expenses() {
		if e.PersonID == gone.ID {
			t.Fatalf("expense %d references the deleted person", e.ID)
		}
	}
}

type deleteAfterRead struct {
	r     *strings.Reader
	onEOF func()
	done  bool
}

func (d *deleteAfterRead) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if errors.Is(err, io.EOF) && !d.done {
		d.done = true
		d.onEOF()
	}
	return n, err
}

func TestConcurrentRefreshKeepsLatestState(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	p := f.person(t, "アイドル太郎")
	if _, _, err := f.svc.AddBudget(ctx, core.Budget{PersonID: p.ID, Amount: 10000, Period: core.PeriodMonthly}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				f.svc.Refresh(ctx)
				return
			}
			f.svc.AddExpense(ctx, core.Expense{Amount: 1000, Category: core.CategoryCafe, PersonID: p.ID})
		}(i)
	}
	wg.Wait()

	// Ten expenses of 1000 use the whole budget. Whatever the interleaving,
	// the feed must match the final state.
	n := f.svc.Notifications(ctx)
	if len(n) != 1 || n[0].Kind != notify.KindBudgetExceeded {
		t.Fatalf("feed does not match the final state: %+v", n)
	}
}
