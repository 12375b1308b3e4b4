// Command seed loads products into the catalog in one batch and reports the
// migration status of the database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/slug"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dryRun bool

var rootCmd = &cobra.Command{
	Use:           "seed",
	Short:         "Storefront data tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var productsCmd = &cobra.Command{
	Use:   "products FILE",
	Short: "Add the products in a JSON file as one batch",
	Long: `Reads either a JSON array of products or an object with an "items" array.
Every product is validated before anything is written; one invalid entry
rejects the whole file.`,
	Args: cobra.ExactArgs(1),
	RunE: runProducts,
}

var migrationsCmd = &cobra.Command{
	Use:   "migrations",
	Short: "Print the migration status of the database",
	Args:  cobra.NoArgs,
	RunE:  runMigrations,
}

func init() {
	productsCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	rootCmd.AddCommand(productsCmd, migrationsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// readDrafts accepts a bare array or the batch endpoint payload.
func readDrafts(r io.Reader) ([]domain.ProductDraft, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	var drafts []domain.ProductDraft
	if err := json.Unmarshal(raw, &drafts); err == nil {
		return drafts, nil
	}

	var batch struct {
		Items []domain.ProductDraft `json:"items"`
	}
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse products: %w", err)
	}
	if batch.Items == nil {
		return nil, errors.New(`expected a JSON array or an object with "items"`)
	}
	return batch.Items, nil
}

func runProducts(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	drafts, err := readDrafts(f)
	if err != nil {
		return err
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	if dryRun {
		return validateOnly(cmd.OutOrStdout(), drafts)
	}

	dbService, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer dbService.Close()

	if err := database.RunMigrations(dbService.DB(), log); err != nil {
		return err
	}

	admin := service.NewAdminService(repository.NewProductRepository(dbService.DB()), log)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	products, err := admin.BatchCreate(ctx, drafts)
	if err != nil {
		return describe(err)
	}

	out := cmd.OutOrStdout()
	for _, p := range products {
		fmt.Fprintf(out, "%s\t%s\n", p.ID, slug.Generate(p.Title, p.ID))
	}
	log.Info("Seeded products", zap.Int("count", len(products)))
	return nil
}

// validateOnly runs the admin validation against a store that must never be
// reached.
func validateOnly(out io.Writer, drafts []domain.ProductDraft) error {
	admin := service.NewAdminService(rejectingStore{}, zap.NewNop())
	_, err := admin.BatchCreate(context.Background(), drafts)
	if errors.Is(err, errDryRun) {
		fmt.Fprintf(out, "%d products are valid\n", len(drafts))
		return nil
	}
	return describe(err)
}

func describe(err error) error {
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	for _, f := range verr.Fields {
		fmt.Fprintf(os.Stderr, "%s: %s\n", f.Field, f.Message)
	}
	return fmt.Errorf("%d invalid fields", len(verr.Fields))
}

func runMigrations(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	dbService, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer dbService.Close()

	return database.GetMigrationStatus(dbService.DB())
}

var errDryRun = errors.New("dry run")

// rejectingStore stands in for the product store during a dry run.
type rejectingStore struct {
	repository.ProductRepository
}

func (rejectingStore) BatchCreate(context.Context, []domain.ProductDraft) ([]*domain.Product, error) {
	return nil, errDryRun
}
