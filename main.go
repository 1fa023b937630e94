package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"GreenChat/app"
	"GreenChat/global/config"
	"GreenChat/logger"
	chatsvc "GreenChat/module/chat/service"
	"GreenChat/service/store"
	"GreenChat/tools/security"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := config.Flags()
	root := &cobra.Command{
		Use:          "greenchat",
		Short:        "team chat gateway",
		SilenceUsage: true,
	}
	root.PersistentFlags().AddFlagSet(flags)
	root.AddCommand(serveCmd(flags), sweepCmd(flags), tokenCmd(flags), roomCmd(flags))
	return root
}

// loadConfig reads configuration and sets up logging from it.
func loadConfig(flags *pflag.FlagSet) (*config.Loader, *config.AppConfig, error) {
	path, _ := flags.GetString("config")
	loader, err := config.NewLoader(path, flags)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, nil, err
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	return loader, cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd(flags *pflag.FlagSet) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the websocket gateway and REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()
			cfg, remote, err := app.LoadConfig(loader)
			if err != nil {
				return err
			}
			defer remote.Close()
			logger.SetLevel(cfg.Log.Level)

			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := remote.Register(cfg); err != nil {
				logger.Warn("nacos register failed", zap.Error(err))
			}
			logger.Info("greenchat starting", zap.String("addr", cfg.Server.Addr), zap.Int64("node_id", cfg.NodeID))
			return a.Run(ctx)
		},
	}
}

func sweepCmd(flags *pflag.FlagSet) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "purge messages past their room's retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signalContext()
			defer stop()

			sw, closer, err := app.NewSweeper(ctx, cfg)
			if err != nil {
				return err
			}
			defer closer.Close()
			if !once {
				return sw.Run(ctx)
			}
			rep, err := sw.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rooms=%d archived=%d purged=%d failed=%d\n", rep.Rooms, rep.Archived, rep.Purged, rep.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func tokenCmd(flags *pflag.FlagSet) *cobra.Command {
	var sub, name string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth.secret is empty")
			}
			opts := app.JWTOptions(cfg.Auth)
			if ttl > 0 {
				opts.TTL = ttl
			}
			tok, exp, err := security.Generate(opts, sub, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n# expires %s\n", tok, exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "subject id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "override token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func roomCmd(flags *pflag.FlagSet) *cobra.Command {
	cmd := &cobra.Command{Use: "room", Short: "room chat settings"}
	toggle := func(use string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <teamId>",
			Short: use + " chat in a room",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				roomID, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("bad team id %q", args[0])
				}
				_, cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				ctx, stop := signalContext()
				defer stop()
				st, err := store.Open(ctx, cfg.Store)
				if err != nil {
					return err
				}
				defer st.Close()
				settings := chatsvc.NewSettings(st, cfg.Store.Timeout)
				if active {
					err = settings.Activate(ctx, roomID)
				} else {
					err = settings.Deactivate(ctx, roomID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "room %d chat_active=%v\n", roomID, active)
				return nil
			},
		}
	}
	cmd.AddCommand(toggle("activate", true), toggle("deactivate", false))
	return cmd
}
