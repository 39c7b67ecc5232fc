package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"apmdemo/internal/database"
	"apmdemo/internal/database/migration"
	"apmdemo/internal/repository/postgres"
	"apmdemo/internal/service"
)

var (
	seedUsers = []service.UserInput{
		{Name: "John Doe", Email: "john@example.com"},
		{Name: "Jane Smith", Email: "jane@example.com"},
	}
	seedProducts = []service.ProductInput{
		{Name: "Mechanical Keyboard", Description: "87-key, brown switches", PriceCents: 8999, Stock: 25},
		{Name: "USB-C Hub", Description: "7-in-1 with HDMI and card reader", PriceCents: 3499, Stock: 100},
	}
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo users and products",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migration.EnsureMigrated(cmd.Context(), db, lg, cfg.Database.Host); err != nil {
				return err
			}

			users := service.NewUserService(postgres.NewUserPostgres(db), nil, 0)
			products := service.NewProductService(postgres.NewProductPostgres(db), nil, nil, 0)
			return seed(cmd.Context(), users, products)
		},
	}
}

// seed inserts the demo users, skipping emails that already exist, and the demo products when the
// catalog is empty.
func seed(ctx context.Context, users service.UserService, products service.ProductService) error {
	for _, in := range seedUsers {
		u, err := users.Create(ctx, in)
		if errors.Is(err, service.ErrConflict) {
			lg.Info().Str("email", in.Email).Msg("seed_user_exists")
			continue
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", in.Email, err)
		}
		lg.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("seed_user_created")
	}

	existing, err := products.List(ctx, 1, 0)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if existing.Total > 0 {
		lg.Info().Int("products", existing.Total).Msg("seed_products_skipped")
		return nil
	}
	for _, in := range seedProducts {
		p, err := products.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", in.Name, err)
		}
		lg.Info().Str("product_id", p.ID).Str("name", p.Name).Msg("seed_product_created")
	}
	return nil
}
