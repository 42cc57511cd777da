package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"smartsort_backend/internal/api"
	jwtmw "smartsort_backend/internal/platform/jwt"
)

func newRootCommand() *cobra.Command {
	var (
		secret  string
		labeler string
		ttl     time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the /submit endpoints",
		Long: `Issue an HS256 token whose subject identifies the labeler.

Examples:
  token --labeler=alice
  token --labeler=alice --ttl=24h --json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("secret is required (--secret or " + jwtmw.EnvKeyJWTSecret + ")")
			}
			if ttl <= 0 {
				return fmt.Errorf("invalid ttl: %s", ttl)
			}

			token, err := jwtmw.NewGenerator(secret, ttl).GenerateToken(labeler)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(api.TokenResponse{Token: token})
			}
			_, err = fmt.Fprintln(out, token)
			return err
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv(jwtmw.EnvKeyJWTSecret), "HMAC signing secret")
	cmd.Flags().StringVar(&labeler, "labeler", "", "labeler ID written to the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the token as JSON")
	_ = cmd.MarkFlagRequired("labeler")
	return cmd
}
