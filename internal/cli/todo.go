package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/tododb/internal/config"
	"github.com/example/tododb/internal/todostore"
)

// TodoCmd returns the todo command group
func TodoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todo",
		Short: "Work with todos in the provisioned datastore",
		Long: `Create, list and update todos in the bootstrapped database.
Requires a running datastore (see 'tododb up').

Examples:
  tododb todo add "Buy milk" --description "Two liters"
  tododb todo list
  tododb todo list --status pending
  tododb todo done 3
  tododb todo rm 3`,
	}

	cmd.AddCommand(todoAddCmd())
	cmd.AddCommand(todoListCmd())
	cmd.AddCommand(todoDoneCmd())
	cmd.AddCommand(todoRmCmd())

	return cmd
}

// withStore connects to the application database for the duration of a
// single subcommand.
func withStore(ctx context.Context, fn func(*todostore.Store) error) error {
	cfg := config.Load()

	store, pool, err := todostore.Connect(ctx, cfg.URL())
	if err != nil {
		return fmt.Errorf("is the datastore running? (%w)", err)
	}
	defer pool.Close()

	return fn(store)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid todo id %q", arg)
	}
	return id, nil
}

func todoAddCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a new todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			return withStore(cmd.Context(), func(store *todostore.Store) error {
				todo, err := store.Create(cmd.Context(), title, description)
				if err != nil {
					return err
				}
				fmt.Printf("Created todo %d: %s\n", todo.ID, todo.Title)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Longer description")

	return cmd
}

func todoListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List todos",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && status != config.StatusPending && status != config.StatusCompleted {
				return fmt.Errorf("invalid status %q (want %s or %s)",
					status, config.StatusPending, config.StatusCompleted)
			}

			return withStore(cmd.Context(), func(store *todostore.Store) error {
				todos, err := store.List(cmd.Context(), status)
				if err != nil {
					return err
				}

				if len(todos) == 0 {
					fmt.Println("No todos.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tDESCRIPTION")
				for _, todo := range todos {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
						todo.ID, todo.Status, todo.Title, todo.Description)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending or completed)")

	return cmd
}

func todoDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a todo as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(store *todostore.Store) error {
				if err := store.Complete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Printf("Completed todo %d\n", id)
				return nil
			})
		},
	}
}

func todoRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(store *todostore.Store) error {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Printf("Deleted todo %d\n", id)
				return nil
			})
		},
	}
}
