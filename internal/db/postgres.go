package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"macro-tracker/config"
	"macro-tracker/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PostgresDB struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var (
	_ Store      = (*PostgresDB)(nil)
	_ Transactor = (*PostgresDB)(nil)
)

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	// Set connection pool parameters
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnLifetime
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool, q: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil && !db.inTx {
		db.pool.Close()
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) InTx(ctx context.Context, fn func(tx Store) error) error {
	if db.inTx {
		return fn(db)
	}
	return db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(&PostgresDB{pool: db.pool, q: tx, inTx: true})
	})
}

// remote classifies a driver error.
func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &RemoteError{Op: op, Err: err}
}

func (db *PostgresDB) GetFood(ctx context.Context, owner uuid.UUID, id int64) (*models.Food, error) {
	query := `
        SELECT id, user_id, name, protein, carbs, fat, serving_size, created_at
        FROM foods
        WHERE id = $1 AND user_id = $2
    `

	var f models.Food
	err := db.q.QueryRow(ctx, query, id, owner).Scan(
		&f.ID, &f.Owner, &f.Name, &f.ProteinG, &f.CarbsG, &f.FatG, &f.ServingSizeG, &f.CreatedAt,
	)
	if err != nil {
		return nil, remote("get food", err)
	}
	return &f, nil
}

func (db *PostgresDB) ListFoods(ctx context.Context, owner uuid.UUID) ([]models.Food, error) {
	return db.listFoods(ctx, "list foods", `
        SELECT id, user_id, name, protein, carbs, fat, serving_size, created_at
        FROM foods
        WHERE user_id = $1
        ORDER BY name ASC, id ASC
    `, owner)
}

func (db *PostgresDB) RecentFoods(ctx context.Context, owner uuid.UUID, limit int) ([]models.Food, error) {
	return db.listFoods(ctx, "recent foods", `
        SELECT id, user_id, name, protein, carbs, fat, serving_size, created_at
        FROM foods
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `, owner, limit)
}

func (db *PostgresDB) listFoods(ctx context.Context, op, query string, args ...interface{}) ([]models.Food, error) {
	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, remote(op, err)
	}
	defer rows.Close()

	foods := make([]models.Food, 0)
	for rows.Next() {
		var f models.Food
		if err := rows.Scan(&f.ID, &f.Owner, &f.Name, &f.ProteinG, &f.CarbsG, &f.FatG, &f.ServingSizeG, &f.CreatedAt); err != nil {
			return nil, remote(op, err)
		}
		foods = append(foods, f)
	}
	return foods, remote(op, rows.Err())
}

func (db *PostgresDB) InsertFood(ctx context.Context, food *models.Food) error {
	query := `
        INSERT INTO foods (user_id, name, protein, carbs, fat, serving_size)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `

	err := db.q.QueryRow(ctx, query,
		food.Owner, food.Name, food.ProteinG, food.CarbsG, food.FatG, food.ServingSizeG,
	).Scan(&food.ID, &food.CreatedAt)

	return remote("insert food", err)
}

func (db *PostgresDB) DeleteFood(ctx context.Context, owner uuid.UUID, id int64) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM foods WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return remote("delete food", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete food %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) GetMeal(ctx context.Context, owner uuid.UUID, id int64) (*models.Meal, error) {
	query := `
        SELECT id, user_id, name, protein, carbs, fat, calories, created_at
        FROM meals
        WHERE id = $1 AND user_id = $2
    `

	var m models.Meal
	err := db.q.QueryRow(ctx, query, id, owner).Scan(
		&m.ID, &m.Owner, &m.Name, &m.ProteinG, &m.CarbsG, &m.FatG, &m.Calories, &m.CreatedAt,
	)
	if err != nil {
		return nil, remote("get meal", err)
	}
	return &m, nil
}

func (db *PostgresDB) ListMeals(ctx context.Context, owner uuid.UUID, from, to time.Time) ([]models.Meal, error) {
	query := `
        SELECT id, user_id, name, protein, carbs, fat, calories, created_at
        FROM meals
        WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
        ORDER BY created_at DESC, id DESC
    `

	rows, err := db.q.Query(ctx, query, owner, from, to)
	if err != nil {
		return nil, remote("list meals", err)
	}
	defer rows.Close()

	meals := make([]models.Meal, 0)
	for rows.Next() {
		var m models.Meal
		if err := rows.Scan(&m.ID, &m.Owner, &m.Name, &m.ProteinG, &m.CarbsG, &m.FatG, &m.Calories, &m.CreatedAt); err != nil {
			return nil, remote("list meals", err)
		}
		meals = append(meals, m)
	}
	return meals, remote("list meals", rows.Err())
}

func (db *PostgresDB) InsertMeal(ctx context.Context, meal *models.Meal) error {
	query := `
        INSERT INTO meals (user_id, name, protein, carbs, fat, calories, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `

	err := db.q.QueryRow(ctx, query,
		meal.Owner, meal.Name, meal.ProteinG, meal.CarbsG, meal.FatG, meal.Calories, meal.CreatedAt,
	).Scan(&meal.ID)

	return remote("insert meal", err)
}

func (db *PostgresDB) UpdateMeal(ctx context.Context, meal *models.Meal) error {
	query := `
        UPDATE meals
        SET name = $3, protein = $4, carbs = $5, fat = $6, calories = $7, created_at = $8
        WHERE id = $1 AND user_id = $2
    `

	tag, err := db.q.Exec(ctx, query,
		meal.ID, meal.Owner, meal.Name, meal.ProteinG, meal.CarbsG, meal.FatG, meal.Calories, meal.CreatedAt,
	)
	if err != nil {
		return remote("update meal", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update meal %d: %w", meal.ID, ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) DeleteMeal(ctx context.Context, owner uuid.UUID, id int64) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM meals WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return remote("delete meal", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete meal %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) ListMealLines(ctx context.Context, owner uuid.UUID, mealID int64) ([]models.MealLine, error) {
	query := `
        SELECT mf.id, mf.meal_id, mf.food_id, mf.food_name, mf.food_protein, mf.food_carbs,
               mf.food_fat, mf.serving_size, mf.quantity, mf.is_quick_macro
        FROM meal_foods mf
        JOIN meals m ON m.id = mf.meal_id
        WHERE mf.meal_id = $1 AND m.user_id = $2
        ORDER BY mf.id ASC
    `

	rows, err := db.q.Query(ctx, query, mealID, owner)
	if err != nil {
		return nil, remote("list meal lines", err)
	}
	defer rows.Close()

	lines := make([]models.MealLine, 0)
	for rows.Next() {
		var l models.MealLine
		if err := rows.Scan(
			&l.ID, &l.MealID, &l.FoodID, &l.Name, &l.ProteinG, &l.CarbsG,
			&l.FatG, &l.ServingSizeG, &l.Quantity, &l.IsQuickMacro,
		); err != nil {
			return nil, remote("list meal lines", err)
		}
		lines = append(lines, l)
	}
	return lines, remote("list meal lines", rows.Err())
}

func (db *PostgresDB) InsertMealLine(ctx context.Context, owner uuid.UUID, line *models.MealLine) error {
	// The owning meal must belong to owner; otherwise no row is inserted.
	query := `
        INSERT INTO meal_foods (meal_id, food_id, food_name, food_protein, food_carbs, food_fat,
                                serving_size, quantity, is_quick_macro)
        SELECT m.id, $3, $4, $5, $6, $7, $8, $9, $10
        FROM meals m
        WHERE m.id = $1 AND m.user_id = $2
        RETURNING id
    `

	err := db.q.QueryRow(ctx, query,
		line.MealID, owner, line.FoodID, line.Name, line.ProteinG, line.CarbsG,
		line.FatG, line.ServingSizeG, line.Quantity, line.IsQuickMacro,
	).Scan(&line.ID)

	return remote("insert meal line", err)
}

func (db *PostgresDB) DeleteMealLines(ctx context.Context, owner uuid.UUID, mealID int64) error {
	query := `
        DELETE FROM meal_foods mf
        USING meals m
        WHERE mf.meal_id = m.id AND m.id = $1 AND m.user_id = $2
    `

	_, err := db.q.Exec(ctx, query, mealID, owner)
	return remote("delete meal lines", err)
}

func (db *PostgresDB) GetSettings(ctx context.Context, owner uuid.UUID) (*models.UserSettings, error) {
	query := `
        SELECT id, user_id, calorie_goal, protein_goal, carb_goal, fat_goal, bulk_cut_start_date
        FROM user_settings
        WHERE user_id = $1
    `

	var s models.UserSettings
	err := db.q.QueryRow(ctx, query, owner).Scan(
		&s.ID, &s.Owner, &s.CalorieGoal, &s.ProteinGoal, &s.CarbGoal, &s.FatGoal, &s.BulkCutStartDate,
	)
	if err != nil {
		return nil, remote("get settings", err)
	}
	return &s, nil
}

func (db *PostgresDB) UpsertSettings(ctx context.Context, settings *models.UserSettings) error {
	query := `
        INSERT INTO user_settings (user_id, calorie_goal, protein_goal, carb_goal, fat_goal, bulk_cut_start_date)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE
        SET calorie_goal = $2, protein_goal = $3, carb_goal = $4, fat_goal = $5, bulk_cut_start_date = $6
        RETURNING id
    `

	err := db.q.QueryRow(ctx, query,
		settings.Owner, settings.CalorieGoal, settings.ProteinGoal,
		settings.CarbGoal, settings.FatGoal, settings.BulkCutStartDate,
	).Scan(&settings.ID)

	return remote("upsert settings", err)
}
