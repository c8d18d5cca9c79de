package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

var importDryRun bool

// importFile is the YAML layout accepted by the import command.
type importFile struct {
	Entities []importRecord `yaml:"entities"`
}

// importRecord keeps amounts and timestamps as strings so they are parsed
// exactly rather than through float64.
type importRecord struct {
	ID             string `yaml:"id"`
	Client         string `yaml:"client"`
	Owner          string `yaml:"owner"`
	Status         string `yaml:"status"`
	ProposedAmount string `yaml:"proposed_amount"`
	ApprovedAmount string `yaml:"approved_amount"`
	LastMovementAt string `yaml:"last_movement_at"`
	UpdatedAt      string `yaml:"updated_at"`
	CreatedAt      string `yaml:"created_at"`
}

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Load tracked entities from a YAML file",
	Long: `Insert or replace tracked entity snapshots from a YAML file.

File format:
  entities:
    - id: INV-1042
      client: Acme Corp
      owner: dana
      status: sent
      proposed_amount: "12500.00"
      approved_amount: "0"
      last_movement_at: "2026-02-14"

Timestamps accept RFC 3339, "2006-01-02 15:04:05" and "2006-01-02".

Example:
  staleguard import entities.yaml -c staleguard.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()

		entities, err := parseImport(f)
		if err != nil {
			return err
		}
		if importDryRun {
			fmt.Printf("%d entities valid, nothing written\n", len(entities))
			return nil
		}

		return withStore(func(cfg *Config, store *storage.SQLiteStorage) error {
			total, err := importEntities(context.Background(), store.Entities(), entities)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d entities into %s (%d stored)\n", len(entities), cfg.Database.Path, total)
			return nil
		})
	},
}

// importEntities upserts entities and returns the number stored afterwards.
func importEntities(ctx context.Context, repo storage.EntityRepository, entities []*models.TrackedEntity) (int64, error) {
	for _, e := range entities {
		if err := repo.Upsert(ctx, e); err != nil {
			return 0, fmt.Errorf("import %s: %w", e.ID, err)
		}
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return total, nil
}

// parseImport decodes and validates an import file.
func parseImport(r io.Reader) ([]*models.TrackedEntity, error) {
	var file importFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse import file: %w", err)
	}

	seen := make(map[string]bool, len(file.Entities))
	entities := make([]*models.TrackedEntity, 0, len(file.Entities))
	for i, rec := range file.Entities {
		e, err := rec.entity()
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i+1, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("entity %d: duplicate id %q", i+1, e.ID)
		}
		seen[e.ID] = true
		entities = append(entities, e)
	}
	return entities, nil
}

func (r importRecord) entity() (*models.TrackedEntity, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}

	proposed, err := parseAmount(r.ProposedAmount)
	if err != nil {
		return nil, fmt.Errorf("%s: proposed_amount: %w", id, err)
	}
	approved, err := parseAmount(r.ApprovedAmount)
	if err != nil {
		return nil, fmt.Errorf("%s: approved_amount: %w", id, err)
	}

	e := &models.TrackedEntity{
		ID:             id,
		Client:         strings.TrimSpace(r.Client),
		Owner:          strings.TrimSpace(r.Owner),
		Status:         strings.TrimSpace(r.Status),
		ProposedAmount: proposed,
		ApprovedAmount: approved,
	}
	for _, ts := range []struct {
		field string
		value string
		dst   **time.Time
	}{
		{"last_movement_at", r.LastMovementAt, &e.LastMovementAt},
		{"updated_at", r.UpdatedAt, &e.UpdatedAt},
		{"created_at", r.CreatedAt, &e.CreatedAt},
	} {
		if strings.TrimSpace(ts.value) == "" {
			continue
		}
		t, ok := alerting.ParseActivityTime(ts.value)
		if !ok {
			return nil, fmt.Errorf("%s: %s: unrecognized time %q", id, ts.field, ts.value)
		}
		*ts.dst = &t
	}
	return e, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate the file without writing")
	rootCmd.AddCommand(importCmd)
}
