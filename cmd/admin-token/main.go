// Command admin-token issues a bearer token for the admin donation endpoints.
// It reads the service configuration, so the token is signed with the same
// auth.token-secret the running service validates against.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"donation-service/internal/auth"
	"donation-service/internal/config"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}

	if err := run(os.Args[1:], configPath, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, configPath string, w io.Writer) error {
	fs := flag.NewFlagSet("admin-token", flag.ContinueOnError)
	user := fs.String("user", "", "trustee name recorded as the token subject")
	ttl := fs.Duration("ttl", 8*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *user == "" {
		return errors.New("-user is required")
	}
	if *ttl <= 0 {
		return errors.New("-ttl must be positive")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	token, err := auth.NewTokens(cfg.Auth).AdminToken(*user, *ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
