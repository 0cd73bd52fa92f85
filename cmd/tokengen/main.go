package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"quickcourt.org/internal/auth"
)

// Mints a signed bearer token for local testing. Production tokens come
// from the auth collaborator, not from this tool.
func main() {
	log.SetFlags(0)
	var (
		id     = flag.String("id", "", "Subject user id")
		role   = flag.String("role", "user", "Role: user, owner or admin")
		banned = flag.Bool("banned", false, "Mark the subject banned")
		ttl    = flag.Duration("ttl", time.Hour, "Token lifetime")
	)
	flag.Parse()

	secret := os.Getenv("QUICKCOURT_JWT_SECRET")
	if secret == "" {
		log.Fatal("missing QUICKCOURT_JWT_SECRET")
	}
	if *id == "" {
		log.Fatal("missing -id")
	}
	parsed, ok := auth.ParseRole(*role)
	if !ok {
		log.Fatalf("unknown role %q", *role)
	}

	tok, err := auth.NewVerifier(secret).IssueToken(auth.Actor{
		ID:     *id,
		Role:   parsed,
		Banned: *banned,
	}, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(tok)
}
