package sqldb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

// FoodEntryStore implements store.FoodEntryStore.
type FoodEntryStore struct {
	db *DB
}

func NewFoodEntryStore(db *DB) *FoodEntryStore {
	return &FoodEntryStore{db: db}
}

const foodEntryColumns = `id, user_id, session_id, meal_type, foods,
	total_calories, total_protein, total_carbs, total_fat, entry_date, created_at`

// Create persists a food entry. The meal type must be one of the known
// meals; raw logged names are normalized into single-quantity items when no
// structured foods were provided, and missing totals are summed from items.
func (s *FoodEntryStore) Create(ctx context.Context, e *store.FoodEntry) error {
	if !store.ValidMealType(e.MealType) {
		return fmt.Errorf("create food entry: %w", store.ErrInvalidMealType)
	}
	e.MealType = store.NormalizeMealType(e.MealType)

	if len(e.Foods) == 0 && len(e.FoodsLogged) > 0 {
		e.Foods = store.FoodsFromLogged(e.FoodsLogged)
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Date.IsZero() {
		e.Date = time.Now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.Date
	}
	if e.TotalCalories == 0 && e.TotalProtein == 0 && e.TotalCarbs == 0 && e.TotalFat == 0 {
		for _, f := range e.Foods {
			e.TotalCalories += f.Calories
			e.TotalProtein += f.Protein
			e.TotalCarbs += f.Carbs
			e.TotalFat += f.Fat
		}
	}

	foodsJSON, _ := json.Marshal(e.Foods)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO food_entries (`+foodEntryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.UserID, e.SessionID, e.MealType, foodsJSON,
		e.TotalCalories, e.TotalProtein, e.TotalCarbs, e.TotalFat, e.Date, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert food entry: %w", err)
	}
	return nil
}

func (s *FoodEntryStore) ListByUser(ctx context.Context, userID string, limit int) ([]store.FoodEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+foodEntryColumns+` FROM food_entries
		 WHERE user_id = $1 ORDER BY entry_date DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list food entries: %w", err)
	}
	defer rows.Close()

	var out []store.FoodEntry
	for rows.Next() {
		e, err := scanFoodEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate food entries: %w", err)
	}
	return out, nil
}

func (s *FoodEntryStore) LastByUser(ctx context.Context, userID string) (*store.FoodEntry, error) {
	entries, err := s.ListByUser(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, store.ErrNotFound
	}
	return &entries[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFoodEntry(row rowScanner) (*store.FoodEntry, error) {
	var e store.FoodEntry
	var foodsJSON []byte
	err := row.Scan(&e.ID, &e.UserID, &e.SessionID, &e.MealType, &foodsJSON,
		&e.TotalCalories, &e.TotalProtein, &e.TotalCarbs, &e.TotalFat, &e.Date, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	json.Unmarshal(foodsJSON, &e.Foods)
	return &e, nil
}
