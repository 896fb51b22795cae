package todostore

// Todo is a row in the todos table.
type Todo struct {
	ID          int64
	Title       string
	Description string
	Status      string
}
