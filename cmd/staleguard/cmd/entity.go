package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

var errEntityNotFound = errors.New("entity not found")

// entityView is one entity with its age, current level and cooldown state.
type entityView struct {
	Entity  *models.TrackedEntity `json:"entity"`
	AgeDays int                   `json:"age_days"`
	Level   models.Level          `json:"level,omitempty"`
	State   *models.CooldownState `json:"state,omitempty"`
}

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Inspect and remove tracked entities",
}

var entityShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one entity with its cooldown state",
	Example: `  staleguard entity show INV-1042
  staleguard entity show INV-1042 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			view, err := lookupEntity(ctx, a, args[0], a.controller.Now())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(view)
			}
			printEntity(os.Stdout, view)
			return nil
		})
	},
}

var entityDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove an entity from the record source",
	Long: `Remove an entity snapshot. Its alert history and cooldown state are kept;
use prune to age out history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(cfg *Config, store *storage.SQLiteStorage) error {
			if err := deleteEntity(cmd.Context(), store.Entities(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var entityStatesCmd = &cobra.Command{
	Use:   "states",
	Short: "List stored cooldown states",
	Long: `List every cooldown state in the configured state backend, including
entities that are no longer alerting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			states, err := a.states.List(ctx)
			if err != nil {
				return fmt.Errorf("list cooldown states: %w", err)
			}
			if jsonOutput() {
				return printJSON(states)
			}
			printStates(os.Stdout, states)
			return nil
		})
	},
}

// lookupEntity loads an entity and its cooldown state as of now.
func lookupEntity(ctx context.Context, a *app, id string, now time.Time) (*entityView, error) {
	e, err := a.store.Entities().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", errEntityNotFound, id)
	}

	view := &entityView{Entity: e, AgeDays: alerting.AgeDays(e, now)}
	if rule := a.catalog.Current().Highest(view.AgeDays); rule != nil {
		view.Level = rule.Level
	}

	state, err := a.controller.State(ctx, id)
	switch {
	case errors.Is(err, alerting.ErrStateNotFound):
	case err != nil:
		return nil, fmt.Errorf("load cooldown state: %w", err)
	default:
		view.State = state
	}
	return view, nil
}

func deleteEntity(ctx context.Context, repo storage.EntityRepository, id string) error {
	e, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: %s", errEntityNotFound, id)
	}
	return repo.Delete(ctx, id)
}

func printEntity(w io.Writer, v *entityView) {
	e := v.Entity
	level := string(v.Level)
	if level == "" {
		level = "-"
	}

	fmt.Fprintf(w, "Entity:        %s\n", e.ID)
	fmt.Fprintf(w, "Client:        %s\n", e.Client)
	fmt.Fprintf(w, "Owner:         %s\n", e.Owner)
	fmt.Fprintf(w, "Status:        %s\n", e.Status)
	fmt.Fprintf(w, "Proposed:      %s\n", e.ProposedAmount.StringFixed(2))
	fmt.Fprintf(w, "Approved:      %s\n", e.ApprovedAmount.StringFixed(2))
	fmt.Fprintf(w, "Last movement: %s\n", formatOptionalTime(e.LastMovementAt))
	fmt.Fprintf(w, "Age:           %dd\n", v.AgeDays)
	fmt.Fprintf(w, "Level:         %s\n", level)

	if v.State == nil {
		fmt.Fprintln(w, "Cooldown:      no state")
		return
	}
	s := v.State
	fmt.Fprintf(w, "Last action:   %s\n", s.LastUserAction)
	fmt.Fprintf(w, "Cooldown:      %s\n", formatOptionalTime(s.CooldownUntil))
	fmt.Fprintf(w, "Last sent:     %s\n", formatOptionalTime(s.LastAlertSentAt))
	fmt.Fprintf(w, "Sent:          %d today, %d total\n", s.SentToday, s.SentLifetime)
}

func printStates(w io.Writer, states []*models.CooldownState) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No cooldown states stored.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tLAST ACTION\tCOOLDOWN UNTIL\tLAST SENT\tSENT")
	for _, s := range states {
		action := string(s.LastUserAction)
		if action == "" {
			action = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			s.EntityID,
			action,
			formatOptionalTime(s.CooldownUntil),
			formatOptionalTime(s.LastAlertSentAt),
			s.SentLifetime,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nTotal: %d state(s)\n", len(states))
}

func init() {
	entityCmd.AddCommand(entityShowCmd, entityDeleteCmd, entityStatesCmd)
	rootCmd.AddCommand(entityCmd)
}
