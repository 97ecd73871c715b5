package memory

import (
	"fmt"

	"oshikakeibo/internal/core"
)

// SeedDemo fills an empty store with the sample people, expenses and
// monthly budgets the client shows on first launch. Expenses are dated in
// the store clock's current month.
func SeedDemo(s *Store) error {
	now := s.now()
	miku := core.NewDate(2000, 7, 15)
	taro := core.NewDate(2000, 8, 20)

	people := []core.Person{
		{Name: "みくにゃん", Genre: core.GenreVTuber, Color: "#FF69B4", Icon: "🎭", Birthday: &miku},
		{Name: "アイドル太郎", Genre: core.GenreIdol, Color: "#87CEEB", Icon: "⭐", Birthday: &taro},
	}
	ids := make([]int64, len(people))
	for i, p := range people {
		stored, err := s.AddPerson(p)
		if err != nil {
			return fmt.Errorf("seed person %q: %w", p.Name, err)
		}
		ids[i] = stored.ID
	}

	day := func(d int) core.Date { return core.NewDate(now.Year(), int(now.Month()), d) }
	expenses := []core.Expense{
		{Amount: 3500, Date: day(10), Category: core.CategoryGoods, PersonID: ids[0], Note: "アクリルスタンド"},
		{Amount: 8000, Date: day(8), Category: core.CategoryTicket, PersonID: ids[1], Note: "ライブチケット"},
		{Amount: 12000, Date: day(5), Category: core.CategoryTravel, PersonID: ids[0], Note: "交通費・宿泊費"},
	}
	for _, e := range expenses {
		if _, err := s.AddExpense(e); err != nil {
			return fmt.Errorf("seed expense: %w", err)
		}
	}

	budgets := []core.Budget{
		{PersonID: ids[0], Amount: 10000, Period: core.PeriodMonthly},
		{PersonID: ids[1], Amount: 15000, Period: core.PeriodMonthly},
	}
	for _, b := range budgets {
		if _, _, err := s.AddBudget(b); err != nil {
			return fmt.Errorf("seed budget: %w", err)
		}
	}
	return nil
}
