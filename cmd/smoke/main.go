package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"quickcourt.org/internal/auth"
)

// Exercises the full booking path against a running quickcourt-api:
// register, publish a venue, approve it, add a court, book, cancel.
func main() {
	base := os.Getenv("QUICKCOURT_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	secret := os.Getenv("QUICKCOURT_JWT_SECRET")
	if secret == "" {
		log.Fatal("missing QUICKCOURT_JWT_SECRET: smoke needs to mint tokens")
	}
	verifier := auth.NewVerifier(secret)

	client := &http.Client{Timeout: 5 * time.Second}

	var health map[string]any
	call(client, http.MethodGet, base+"/healthz", "", nil, http.StatusOK, &health)

	owner := mint(verifier, "smoke-owner", auth.RoleOwner)
	admin := mint(verifier, "smoke-admin", auth.RoleAdmin)
	player := mint(verifier, "smoke-player", auth.RoleUser)

	var venue struct {
		ID string `json:"id"`
	}
	call(client, http.MethodPost, base+"/v1/venues", owner,
		map[string]any{"name": "Smoke Arena"}, http.StatusCreated, &venue)

	call(client, http.MethodPost, base+"/v1/venues/"+venue.ID+"/approve", admin,
		nil, http.StatusOK, nil)

	var court struct {
		ID string `json:"id"`
	}
	call(client, http.MethodPost, base+"/v1/courts", owner,
		map[string]any{"venue_id": venue.ID, "name": "Court 1", "sport": "Badminton", "price_per_hour": "12.50"},
		http.StatusCreated, &court)

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Hour)
	end := start.Add(time.Hour)

	var booked struct {
		ID          string `json:"id"`
		AmountCents int64  `json:"amount_cents"`
	}
	call(client, http.MethodPost, base+"/v1/bookings", player, map[string]any{
		"court_id": court.ID,
		"start_at": start.Format(time.RFC3339),
		"end_at":   end.Format(time.RFC3339),
	}, http.StatusCreated, &booked)

	var cancelled struct {
		Status string `json:"status"`
	}
	call(client, http.MethodPost, base+"/v1/bookings/"+booked.ID+"/cancel", player,
		nil, http.StatusOK, &cancelled)
	if cancelled.Status != "cancelled" {
		log.Fatalf("expected cancelled status, got %q", cancelled.Status)
	}

	fmt.Printf("smoke: PASS (booking %s, %d cents, cancelled)\n", booked.ID, booked.AmountCents)
}

func mint(v *auth.Verifier, id string, role auth.Role) string {
	tok, err := v.IssueToken(auth.Actor{ID: id, Role: role}, 10*time.Minute)
	if err != nil {
		log.Fatalf("mint token for %s: %v", id, err)
	}
	return "Bearer " + tok
}

func call(client *http.Client, method, url, authz string, body any, wantStatus int, out any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("encode %s %s: %v", method, url, err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		log.Fatalf("build %s %s: %v", method, url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d (want %d): %s", method, url, resp.StatusCode, wantStatus, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			log.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
}
