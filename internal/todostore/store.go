package todostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/tododb/internal/config"
)

// ErrNotFound is returned when no todo exists with the requested id.
var ErrNotFound = errors.New("todo not found")

// Store provides access to the todos table.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against the application database and returns a Store
// over it. The caller owns the pool and must close it.
func Connect(ctx context.Context, url string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), pool, nil
}

// Create inserts a new todo and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, title, description string) (*Todo, error) {
	todo := &Todo{
		Title:       title,
		Description: description,
		Status:      config.StatusPending,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO todos (title, description, status)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		todo.Title, todo.Description, todo.Status).Scan(&todo.ID)
	if err != nil {
		return nil, fmt.Errorf("create todo: %w", err)
	}
	return todo, nil
}

// Get returns a single todo by id.
func (s *Store) Get(ctx context.Context, id int64) (*Todo, error) {
	var todo Todo
	err := s.pool.QueryRow(ctx,
		"SELECT id, title, description, status FROM todos WHERE id = $1",
		id).Scan(&todo.ID, &todo.Title, &todo.Description, &todo.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get todo %d: %w", id, err)
	}
	return &todo, nil
}

// List returns all todos ordered by id. An empty status returns everything.
func (s *Store) List(ctx context.Context, status string) ([]Todo, error) {
	query := "SELECT id, title, description, status FROM todos ORDER BY id"
	args := []any{}
	if status != "" {
		query = "SELECT id, title, description, status FROM todos WHERE status = $1 ORDER BY id"
		args = append(args, status)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	var todos []Todo
	for rows.Next() {
		var todo Todo
		if err := rows.Scan(&todo.ID, &todo.Title, &todo.Description, &todo.Status); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

// Complete marks a todo as completed.
func (s *Store) Complete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE todos SET status = $1 WHERE id = $2",
		config.StatusCompleted, id)
	if err != nil {
		return fmt.Errorf("complete todo %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a todo.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM todos WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
