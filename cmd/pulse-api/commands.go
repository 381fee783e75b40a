package main

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/app"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/config"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/seed"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newSeedCommand() *cobra.Command {
	var options seed.Options
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with fake users, posts and comments",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := openEnvironment()
			if err != nil {
				return err
			}
			defer cleanup()
			services, err := app.New(app.Config{
				Database:    rt.db,
				Broadcaster: realtime.NewDispatcher(rt.config.RealtimeBufferSize),
				Logger:      rt.logger,
			})
			if err != nil {
				return err
			}
			_, err = seed.Run(cmd.Context(), services, options, rt.logger.Named("seed"))
			return err
		},
	}
	cmd.Flags().IntVar(&options.Users, "users", 10, "Number of users to create")
	cmd.Flags().IntVar(&options.PostsPerUser, "posts-per-user", 3, "Posts written by each user")
	cmd.Flags().IntVar(&options.CommentsPerPost, "comments-per-post", 2, "Comments added to each post")
	cmd.Flags().Int64Var(&options.Seed, "seed", time.Now().UnixNano(), "Random seed")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		userID      string
		username    string
		displayName string
		roles       []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a session token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SessionSigningKey),
				Issuer:        appConfig.SessionIssuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueSessionToken(auth.SessionClaims{
				UserID:          userID,
				UserName:        username,
				UserDisplayName: displayName,
				UserRoles:       roles,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "Identity in provider:subject form")
	cmd.Flags().StringVar(&username, "username", "", "Preferred username")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "Granted roles (moderator, admin)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema changes and named migrations, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := openEnvironment()
			if err != nil {
				return err
			}
			defer cleanup()
			rt.logger.Info("database is up to date", zap.String("driver", rt.config.DatabaseDriver))
			return nil
		},
	}
}

func newRoleCommand() *cobra.Command {
	var (
		username string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Change the role of an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := openEnvironment()
			if err != nil {
				return err
			}
			defer cleanup()
			service, err := users.NewService(users.ServiceConfig{Database: rt.db, Logger: rt.logger.Named("users")})
			if err != nil {
				return err
			}
			user, err := service.SetRoleByUsername(cmd.Context(), username, users.Role(role))
			if err != nil {
				return err
			}
			rt.logger.Info("user role updated", zap.Uint64("user_id", user.ID), zap.String("role", string(user.Role)))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username of the account to change")
	cmd.Flags().StringVar(&role, "role", "", "New role (user, moderator, admin)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
