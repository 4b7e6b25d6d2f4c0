package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/subscription-engine/internal/pkg/env"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/middleware"
)

var (
	tokenEmail    string
	tokenPlatform string
	tokenTTL      time.Duration
)

// tokenCmd mints a bearer token for local testing against JWT_SECRET.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Print a signed bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := env.GetEnv("JWT_SECRET", "")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := issueToken(args[0], tokenEmail, tokenPlatform, tokenTTL, []byte(secret), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	cmd.Flags().StringVar(&tokenPlatform, "platform", "web", "platform claim (mobile or web)")
	cmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	return cmd
}

func issueToken(userID, email, platform string, ttl time.Duration, key []byte, now time.Time) (string, error) {
	return middleware.SignToken(middleware.Claims{
		ID:       userID,
		Email:    email,
		Platform: platform,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
			Subject:   userID,
		},
	}, key)
}
