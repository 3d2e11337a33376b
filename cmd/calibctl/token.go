package main

import (
	"fmt"
	"time"

	"github.com/BearBump/CalibBox/internal/api/authn"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/spf13/cobra"
)

func NewTokenCommand(load configLoader) *cobra.Command {
	var (
		account int64
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:     "token",
		GroupID: gSetup,
		Short:   "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			r := models.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if account <= 0 {
				return fmt.Errorf("--account must be positive")
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			tok, err := authn.New(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).Issue(models.Actor{AccountID: account, Role: r}, ttl)
			if err != nil {
				return err
			}
			cmd.Println(tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&account, "account", 0, "account id")
	cmd.Flags().StringVar(&role, "role", string(models.RoleCustomer), "ADMIN | CUSTOMER | TECHNICIAN | QM")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
