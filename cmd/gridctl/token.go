package main

import (
	"fmt"
	"strings"
	"time"

	appctx "querygrid/internal/core/context"
	"querygrid/internal/domain/auth"
)

func token(args []string) error {
	cmd := newCommand("token")
	user := cmd.String("user", "", "user id (required)")
	email := cmd.String("email", "", "user email")
	roles := cmd.String("roles", "", "comma-separated roles")
	admin := cmd.Bool("admin", false, "allow managing shared views")
	ttl := cmd.Duration("ttl", 0, "token lifetime; defaults to auth.token_ttl")
	cfg, err := cmd.load(args)
	if err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("--user is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	svc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.Issuer,
		AccessTokenTTL: lifetime,
	})
	if err != nil {
		return err
	}

	signed, expires, err := svc.GenerateAccessToken(appctx.UserContext{
		UserID:  *user,
		Email:   *email,
		Roles:   splitRoles(*roles),
		IsAdmin: *admin,
	})
	if err != nil {
		return err
	}

	fmt.Println(signed)
	fmt.Printf("# expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
