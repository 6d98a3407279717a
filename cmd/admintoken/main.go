// Package main provides a CLI tool for provisioning chalk credentials:
// the admin token (random secret + bcrypt hash for ADMIN_TOKEN_HASH) and
// dev session tokens for exercising the API locally.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"chalk/internal/auth/session"
	"chalk/pkg/secrets"
)

const (
	// Dev signing key - matches config.go when SESSION_SECRET is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultSessionTTL = 15 * time.Minute
)

type adminTokenOutput struct {
	Token string            `json:"token"`
	Hash  string            `json:"hash"`
	Usage map[string]string `json:"usage"`
}

type sessionTokenOutput struct {
	Token     string            `json:"token"`
	UserID    int64             `json:"user_id"`
	ExpiresIn string            `json:"expires_in"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	generateCmd := flag.NewFlagSet("generate", flag.ExitOnError)
	generateJSON := generateCmd.Bool("json", false, "Output as JSON")

	hashCmd := flag.NewFlagSet("hash", flag.ExitOnError)
	hashToken := hashCmd.String("token", "", "Existing plaintext token to hash")
	hashJSON := hashCmd.Bool("json", false, "Output as JSON")

	sessionCmd := flag.NewFlagSet("session", flag.ExitOnError)
	sessionUserID := sessionCmd.Int64("user-id", 1, "User ID for the subject claim")
	sessionTTL := sessionCmd.Duration("ttl", defaultSessionTTL, "Token time-to-live")
	sessionSecret := sessionCmd.String("secret", devSigningKey, "HS256 signing key (must match SESSION_SECRET)")
	sessionJSON := sessionCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		generateCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		generateAdminToken(*generateJSON)
	case "hash":
		hashCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		hashAdminToken(*hashToken, *hashJSON)
	case "session":
		sessionCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		generateSessionToken(*sessionUserID, *sessionTTL, *sessionSecret, *sessionJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`admintoken - Provision chalk credentials

Usage:
  admintoken generate [-json]
      Generate a random admin token and its bcrypt hash. Store the hash in
      ADMIN_TOKEN_HASH; hand the plaintext to the operator.

  admintoken hash -token <plaintext> [-json]
      Print the bcrypt hash of an existing token.

  admintoken session [-user-id 42] [-ttl 15m] [-secret <key>] [-json]
      Mint a dev HS256 session token for local API testing.

WARNING: session tokens minted here use the dev signing key unless -secret
         is given; they will NOT verify against a production deployment.`)
}

func generateAdminToken(asJSON bool) {
	token, err := secrets.Generate()
	if err != nil {
		fatal("generate token: %v", err)
	}
	hash, err := secrets.Hash(token)
	if err != nil {
		fatal("hash token: %v", err)
	}

	if asJSON {
		printJSON(adminTokenOutput{
			Token: token,
			Hash:  hash,
			Usage: map[string]string{
				"deploy": "export ADMIN_TOKEN_HASH='" + hash + "'",
				"curl":   "curl -H 'X-Admin-Token: " + token + "' http://localhost:8080/admin/usage",
			},
		})
		return
	}

	fmt.Println("Admin token (give to the operator, not stored anywhere):")
	fmt.Println("  " + token)
	fmt.Println()
	fmt.Println("Bcrypt hash (set as ADMIN_TOKEN_HASH):")
	fmt.Println("  " + hash)
}

func hashAdminToken(token string, asJSON bool) {
	if token == "" {
		fatal("hash: -token is required")
	}
	hash, err := secrets.Hash(token)
	if err != nil {
		fatal("hash token: %v", err)
	}

	if asJSON {
		printJSON(map[string]string{"hash": hash})
		return
	}
	fmt.Println(hash)
}

func generateSessionToken(userID int64, ttl time.Duration, secret string, asJSON bool) {
	if userID <= 0 {
		fatal("session: -user-id must be positive")
	}
	verifier := session.NewVerifier(secret)
	token, err := verifier.Issue(userID, ttl, time.Now().UTC())
	if err != nil {
		fatal("issue session token: %v", err)
	}

	if asJSON {
		printJSON(sessionTokenOutput{
			Token:     token,
			UserID:    userID,
			ExpiresIn: ttl.String(),
			Usage: map[string]string{
				"curl": "curl -H 'Authorization: Bearer " + token + "' http://localhost:8080/api/usage",
			},
		})
		return
	}

	fmt.Println("Session token:")
	fmt.Println("  " + token)
	fmt.Println()
	fmt.Printf("Subject: user %d, expires in %s\n", userID, ttl)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode output: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
