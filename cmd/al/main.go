package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"assetline/internal/backup"
	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/ledger"
	"assetline/internal/repo"
	"assetline/internal/seed"
	"assetline/internal/server"
	"assetline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Assetline CLI",
	Long: `Assetline tracks assets, technicians, and the work orders (SPKs) that tie
them together. A single bookkeeping layer keeps the derived state honest:
opening a work order marks the asset under repair and counts against the
technician; completing it releases both.

Storage is local (sqlite under .assetline/) or remote (an 'al serve'
instance); every command works the same in both modes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("mode", "", "storage mode override (local or remote)")
	rootCmd.PersistentFlags().String("remote-url", "", "remote API base URL override")
	rootCmd.PersistentFlags().String("remote-token", "", "remote API bearer token override")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("remote-url", rootCmd.PersistentFlags().Lookup("remote-url"))
	_ = viper.BindPFlag("remote-token", rootCmd.PersistentFlags().Lookup("remote-token"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(techCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			cfg := config.Default()
			if err := cfg.Write(workspace); err != nil {
				return err
			}
			s, err := store.OpenLocal(cfg, workspace)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Printf("Initialized workspace: %s and %s\n", path, db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configSetModeCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configSetModeCmd() *cobra.Command {
	var baseURL, token string
	cmd := &cobra.Command{
		Use:   "set-mode <local|remote>",
		Short: "Switch storage mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			cfg.Storage.Mode = args[0]
			if baseURL != "" {
				cfg.Storage.Remote.BaseURL = baseURL
			}
			if token != "" {
				cfg.Storage.Remote.Token = token
			}
			if err := cfg.Write(workspace); err != nil {
				return err
			}
			fmt.Printf("Storage mode set to %s in %s\n", cfg.Storage.Mode, config.Path(workspace))
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "remote API base URL")
	cmd.Flags().StringVar(&token, "token", "", "remote API bearer token")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dataset overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				assets, err := s.ListAssets(ctx, repo.AssetFilters{})
				if err != nil {
					return err
				}
				orders, err := s.ListWorkOrders(ctx, repo.WorkOrderFilters{})
				if err != nil {
					return err
				}
				techs, err := s.ListTechnicians(ctx)
				if err != nil {
					return err
				}
				assetCounts := map[string]int{}
				for _, a := range assets {
					assetCounts[a.Status]++
				}
				orderCounts := map[string]int{}
				for _, w := range orders {
					orderCounts[w.Status]++
				}
				out := map[string]any{
					"mode":              s.Mode(),
					"asset_counts":      assetCounts,
					"work_order_counts": orderCounts,
					"technicians":       len(techs),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Mode: %s\n", s.Mode())
				fmt.Printf("Technicians: %d\n", len(techs))
				fmt.Println("Assets:")
				for status, c := range assetCounts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Println("Work orders:")
				for status, c := range orderCounts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check storage connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				if err := s.CheckConnection(ctx); err != nil {
					return fmt.Errorf("%s storage unreachable: %w", s.Mode(), err)
				}
				fmt.Printf("%s storage reachable\n", s.Mode())
				return nil
			})
		},
	}
	return cmd
}

func assetCmd() *cobra.Command {
	asset := &cobra.Command{Use: "asset", Short: "Manage assets"}
	asset.AddCommand(assetAddCmd())
	asset.AddCommand(assetListCmd())
	asset.AddCommand(assetShowCmd())
	asset.AddCommand(assetUpdateCmd())
	asset.AddCommand(assetSetStatusCmd())
	asset.AddCommand(assetDeleteCmd())
	return asset
}

func assetAddCmd() *cobra.Command {
	var a domain.Asset
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				created, err := s.RegisterAsset(ctx, a, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&a.ID, "id", "", "asset id (optional, generated if omitted)")
	cmd.Flags().StringVar(&a.Name, "name", "", "asset name")
	cmd.Flags().StringVar(&a.Category, "category", "", "category")
	cmd.Flags().StringVar(&a.Location, "location", "", "location")
	cmd.Flags().StringVar(&a.Status, "status", "", "initial status (defaults to operational)")
	cmd.Flags().StringVar(&a.ImageRef, "image", "", "image reference")
	cmd.Flags().StringVar(&a.PurchaseDate, "purchased", "", "purchase date (RFC3339)")
	cmd.Flags().StringVar(&a.ArrivalDate, "arrived", "", "arrival date (RFC3339)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func assetListCmd() *cobra.Command {
	var f repo.AssetFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				items, err := s.ListAssets(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Location", "Status", "Last Maintained"})
				for _, a := range items {
					last := "never"
					if a.LastMaintained != nil {
						last = *a.LastMaintained
					}
					tw.AppendRow(table.Row{a.ID, a.Name, a.Category, a.Location, a.Status, last})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.Location, "location", "", "location filter")
	return cmd
}

func assetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				a, err := s.GetAsset(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetUpdateCmd() *cobra.Command {
	var name, category, location, status, image string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				a, err := s.GetAsset(ctx, args[0])
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					a.Name = name
				}
				if cmd.Flags().Changed("category") {
					a.Category = category
				}
				if cmd.Flags().Changed("location") {
					a.Location = location
				}
				if cmd.Flags().Changed("status") {
					a.Status = status
				}
				if cmd.Flags().Changed("image") {
					a.ImageRef = image
				}
				updated, err := s.EditAsset(ctx, a, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "asset name")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&image, "image", "", "image reference")
	return cmd
}

func assetSetStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Override an asset's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				a, err := s.UpdateAssetStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				if err := s.DeleteAsset(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("Deleted asset %s. Work orders referencing it are kept.\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func techCmd() *cobra.Command {
	tech := &cobra.Command{Use: "tech", Short: "Manage technicians"}
	tech.AddCommand(techAddCmd())
	tech.AddCommand(techListCmd())
	tech.AddCommand(techShowCmd())
	tech.AddCommand(techUpdateCmd())
	tech.AddCommand(techPromoteCmd())
	tech.AddCommand(techDeleteCmd())
	return tech
}

func techAddCmd() *cobra.Command {
	var t domain.Technician
	var rating float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a technician",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("rating") {
				t.Rating = &rating
			}
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				created, err := s.RegisterTechnician(ctx, t, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&t.ID, "id", "", "technician id (optional, generated if omitted)")
	cmd.Flags().StringVar(&t.Name, "name", "", "name")
	cmd.Flags().StringVar(&t.Specialty, "specialty", "", "specialty")
	cmd.Flags().StringVar(&t.Rank, "rank", "", "rank tier (defaults to the first configured tier)")
	cmd.Flags().StringVar(&t.Password, "password", "", "login password")
	cmd.Flags().Float64Var(&rating, "rating", 0, "rating")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func techListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List technicians",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				items, err := s.ListTechnicians(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Specialty", "Rank", "Active Tasks"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Specialty, t.Rank, t.ActiveTasks})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func techShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a technician",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				t, err := s.GetTechnician(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func techUpdateCmd() *cobra.Command {
	var name, specialty, password string
	var rating float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a technician",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				t, err := s.GetTechnician(ctx, args[0])
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					t.Name = name
				}
				if cmd.Flags().Changed("specialty") {
					t.Specialty = specialty
				}
				if cmd.Flags().Changed("password") {
					t.Password = password
				}
				if cmd.Flags().Changed("rating") {
					t.Rating = &rating
				}
				updated, err := s.EditTechnician(ctx, t, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&specialty, "specialty", "", "specialty")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	cmd.Flags().Float64Var(&rating, "rating", 0, "rating")
	return cmd
}

func techPromoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote <id> <rank>",
		Short: "Move a technician to another rank tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				t, err := s.PromoteTechnician(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func techDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a technician",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				orphaned, err := s.DeleteTechnician(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Deleted technician %s.\n", args[0])
				if orphaned > 0 {
					fmt.Printf("Warning: %d active work order(s) still reference this technician.\n", orphaned)
				}
				return nil
			})
		},
	}
	return cmd
}

func orderCmd() *cobra.Command {
	order := &cobra.Command{
		Use:     "order",
		Aliases: []string{"spk"},
		Short:   "Manage work orders (SPKs)",
	}
	order.AddCommand(orderCreateCmd())
	order.AddCommand(orderListCmd())
	order.AddCommand(orderShowCmd())
	order.AddCommand(orderUpdateCmd())
	order.AddCommand(orderSetStatusCmd())
	order.AddCommand(orderCompleteCmd())
	return order
}

func orderCreateCmd() *cobra.Command {
	var w domain.WorkOrder
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				created, report, err := s.CreateWorkOrder(ctx, w, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				warnSkipped(report)
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&w.ID, "id", "", "work order id (optional, deterministic if omitted)")
	cmd.Flags().StringVar(&w.AssetID, "asset", "", "asset id")
	cmd.Flags().StringVar(&w.TechnicianID, "tech", "", "technician id")
	cmd.Flags().StringVar(&w.Title, "title", "", "title")
	cmd.Flags().StringVar(&w.Description, "description", "", "description")
	cmd.Flags().StringVar(&w.Priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().StringVar(&w.DueDate, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("tech")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func orderListCmd() *cobra.Command {
	var f repo.WorkOrderFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				items, err := s.ListWorkOrders(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Asset", "Technician", "Priority", "Status", "Due"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.Title, w.AssetID, w.TechnicianID, w.Priority, w.Status, w.DueDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.AssetID, "asset", "", "asset filter")
	cmd.Flags().StringVar(&f.TechnicianID, "tech", "", "technician filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				w, err := s.GetWorkOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func orderUpdateCmd() *cobra.Command {
	var title, description, priority, due, tech, asset string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a work order, including handover to another technician",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				w := domain.WorkOrder{ID: args[0]}
				if cmd.Flags().Changed("title") {
					w.Title = title
				}
				if cmd.Flags().Changed("description") {
					w.Description = description
				}
				if cmd.Flags().Changed("priority") {
					w.Priority = priority
				}
				if cmd.Flags().Changed("due") {
					w.DueDate = due
				}
				if cmd.Flags().Changed("tech") {
					w.TechnicianID = tech
				}
				if cmd.Flags().Changed("asset") {
					w.AssetID = asset
				}
				updated, report, err := s.UpdateWorkOrder(ctx, w, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				warnSkipped(report)
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&tech, "tech", "", "reassign to technician id")
	cmd.Flags().StringVar(&asset, "asset", "", "asset id")
	return cmd
}

func orderSetStatusCmd() *cobra.Command {
	var note string
	var evidence []string
	cmd := &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Transition a work order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				w, report, err := s.UpdateWorkOrderStatus(ctx, args[0], args[1], note, evidenceOrNil(evidence), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				warnSkipped(report)
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "completion note (required when completing)")
	cmd.Flags().StringArrayVar(&evidence, "evidence", []string{}, "evidence reference (repeatable)")
	return cmd
}

func orderCompleteCmd() *cobra.Command {
	var note string
	var evidence []string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				w, report, err := s.UpdateWorkOrderStatus(ctx, args[0], domain.OrderCompleted, note, evidenceOrNil(evidence), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				warnSkipped(report)
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "completion note")
	cmd.Flags().StringArrayVar(&evidence, "evidence", []string{}, "evidence reference (repeatable)")
	_ = cmd.MarkFlagRequired("note")
	return cmd
}

func settingsCmd() *cobra.Command {
	settings := &cobra.Command{Use: "settings", Short: "Manage settings"}
	settings.AddCommand(settingsShowCmd())
	settings.AddCommand(settingsSetCmd())
	return settings
}

func settingsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, s *store.Local, cfg *config.Config) error {
				stored, err := s.Ledger.Repo.ListSettings(ctx)
				if err != nil {
					return err
				}
				out := map[string]any{
					"theme":      cfg.Theme,
					"language":   cfg.Language,
					"categories": cfg.Categories,
					"locations":  cfg.Locations,
					"ranks":      cfg.Ranks,
				}
				if v, ok := stored[repo.SettingTheme]; ok {
					out["theme"] = v
				}
				if v, ok := stored[repo.SettingLanguage]; ok {
					out["language"] = v
				}
				if cats, err := s.Ledger.Repo.GetStringList(ctx, repo.SettingCategories); err == nil && cats != nil {
					out["categories"] = cats
				}
				if locs, err := s.Ledger.Repo.GetStringList(ctx, repo.SettingLocations); err == nil && locs != nil {
					out["locations"] = locs
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func settingsSetCmd() *cobra.Command {
	var theme, language string
	var categories, locations []string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, s *store.Local, cfg *config.Config) error {
				r := s.Ledger.Repo
				if cmd.Flags().Changed("theme") {
					if err := r.SetSetting(ctx, repo.SettingTheme, theme); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("language") {
					if err := r.SetSetting(ctx, repo.SettingLanguage, language); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("category") {
					if err := r.SetStringList(ctx, repo.SettingCategories, categories); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("location") {
					if err := r.SetStringList(ctx, repo.SettingLocations, locations); err != nil {
						return err
					}
				}
				fmt.Println("Settings updated.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "theme")
	cmd.Flags().StringVar(&language, "language", "", "language")
	cmd.Flags().StringArrayVar(&categories, "category", []string{}, "category (repeatable, replaces the list)")
	cmd.Flags().StringArrayVar(&locations, "location", []string{}, "location (repeatable, replaces the list)")
	return cmd
}

func backupCmd() *cobra.Command {
	bk := &cobra.Command{Use: "backup", Short: "Export and restore the dataset"}
	bk.AddCommand(backupExportCmd())
	bk.AddCommand(backupRestoreCmd())
	return bk
}

func backupExportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the dataset as a JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				doc, err := s.Export(ctx)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return err
				}
				if file == "" {
					fmt.Println(string(data))
					return nil
				}
				if err := os.WriteFile(file, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Exported %d assets, %d SPKs, %d technicians to %s\n",
					len(doc.Assets), len(doc.Orders), len(doc.Technicians), file)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "output path (stdout if omitted)")
	return cmd
}

func backupRestoreCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the dataset from a JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			doc, err := backup.Parse(data)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				if err := s.Restore(ctx, doc, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("Restored %d assets, %d SPKs, %d technicians\n",
					len(doc.Assets), len(doc.Orders), len(doc.Technicians))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "backup document path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func migrateCmd() *cobra.Command {
	mig := &cobra.Command{Use: "migrate", Short: "Move the dataset between storage modes"}
	mig.AddCommand(migrateToRemoteCmd())
	mig.AddCommand(migrateToLocalCmd())
	return mig
}

func migrateToRemoteCmd() *cobra.Command {
	var baseURL, token string
	var switchMode bool
	cmd := &cobra.Command{
		Use:   "to-remote",
		Short: "Copy the local dataset to a remote instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.Storage.Remote.BaseURL = baseURL
			}
			if token != "" {
				cfg.Storage.Remote.Token = token
			}
			if cfg.Storage.Remote.BaseURL == "" {
				return fmt.Errorf("remote base URL is required (--url or config)")
			}
			local, err := store.OpenLocal(cfg, workspace)
			if err != nil {
				return err
			}
			defer local.Close()
			remote := store.OpenRemote(cfg)
			if err := remote.CheckConnection(cmd.Context()); err != nil {
				return fmt.Errorf("remote unreachable: %w", err)
			}
			doc, err := store.Migrate(cmd.Context(), local, remote, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			fmt.Printf("Migrated %d assets, %d SPKs, %d technicians to %s\n",
				len(doc.Assets), len(doc.Orders), len(doc.Technicians), cfg.Storage.Remote.BaseURL)
			if switchMode {
				cfg.Storage.Mode = config.ModeRemote
				if err := cfg.Write(workspace); err != nil {
					return err
				}
				fmt.Println("Storage mode switched to remote.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "remote API base URL")
	cmd.Flags().StringVar(&token, "token", "", "remote API bearer token")
	cmd.Flags().BoolVar(&switchMode, "switch", false, "switch the workspace to remote mode after migrating")
	return cmd
}

func migrateToLocalCmd() *cobra.Command {
	var switchMode bool
	cmd := &cobra.Command{
		Use:   "to-local",
		Short: "Copy the remote dataset into the local workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Remote.BaseURL == "" {
				return fmt.Errorf("remote base URL is required in config")
			}
			remote := store.OpenRemote(cfg)
			if err := remote.CheckConnection(cmd.Context()); err != nil {
				return fmt.Errorf("remote unreachable: %w", err)
			}
			local, err := store.OpenLocal(cfg, workspace)
			if err != nil {
				return err
			}
			defer local.Close()
			doc, err := store.Migrate(cmd.Context(), remote, local, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			fmt.Printf("Migrated %d assets, %d SPKs, %d technicians into %s\n",
				len(doc.Assets), len(doc.Orders), len(doc.Technicians), db.Path(workspace))
			if switchMode {
				cfg.Storage.Mode = config.ModeLocal
				if err := cfg.Write(workspace); err != nil {
					return err
				}
				fmt.Println("Storage mode switched to local.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&switchMode, "switch", false, "switch the workspace to local mode after migrating")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo data into the local workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, s *store.Local, cfg *config.Config) error {
				applied, err := seed.Apply(ctx, s, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if !applied {
					fmt.Println("Workspace already seeded.")
					return nil
				}
				fmt.Println("Seeded demo technicians, assets, and work orders.")
				return nil
			})
		},
	}
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute technician active-task counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				adjustments, err := s.Reconcile(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if len(adjustments) == 0 {
					fmt.Println("Counters already consistent.")
					return nil
				}
				return printJSONOrTable(adjustments)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(cmd.Context(), func(ctx context.Context, s *store.Local, cfg *config.Config) error {
				events, err := s.Ledger.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server over the local workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			local, err := store.OpenLocal(cfg, workspace)
			if err != nil {
				return err
			}
			defer local.Close()
			authCfg := server.AuthConfig{
				JWTSecret:  os.Getenv("AL_JWT_SECRET"),
				AdminToken: os.Getenv("AL_ADMIN_TOKEN"),
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("AL_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Ledger:    local.Ledger,
				Backup:    local.Backup,
				AppConfig: cfg,
				BasePath:  basePath,
				Auth:      authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Assetline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if mode := viper.GetString("mode"); mode != "" {
		cfg.Storage.Mode = mode
	}
	if url := viper.GetString("remote-url"); url != "" {
		cfg.Storage.Remote.BaseURL = url
	}
	if token := viper.GetString("remote-token"); token != "" {
		cfg.Storage.Remote.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func withLocal(ctx context.Context, fn func(context.Context, *store.Local, *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.OpenLocal(cfg, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s, cfg)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func warnSkipped(report ledger.SyncReport) {
	if report.Technician == ledger.OutcomeSkippedNotFound {
		fmt.Fprintln(os.Stderr, "Warning: technician not found; active-task counter not updated.")
	}
	if report.Asset == ledger.OutcomeSkippedNotFound {
		fmt.Fprintln(os.Stderr, "Warning: asset not found; asset status not updated.")
	}
}

func evidenceOrNil(evidence []string) []string {
	if len(evidence) == 0 {
		return nil
	}
	return evidence
}
