package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// A toy teaching-materials app in front of a chalk server, wired the way
// the real product would be: ask the quota service before serving, relay
// the upsell payload on 403. Run chalk with CHALK_ENV=development and no
// DATABASE_URL to get seeded demo accounts to poke at.

type worksheet struct {
	Title     string   `json:"title"`
	Subject   string   `json:"subject"`
	Questions []string `json:"questions"`
}

type apiResponse struct {
	Message   string          `json:"message"`
	Worksheet *worksheet      `json:"worksheet,omitempty"`
	Quota     json.RawMessage `json:"quota,omitempty"`
	Upsell    json.RawMessage `json:"upsell,omitempty"`
	Warning   string          `json:"warning,omitempty"`
}

var generated atomic.Int64

func main() {
	port := getenv("PORT", "3000")
	chalkURL := strings.TrimRight(getenv("CHALK_URL", "http://localhost:8080"), "/")
	client := &http.Client{Timeout: 5 * time.Second}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apiResponse{Message: "ok"})
	})
	mux.HandleFunc("/worksheets", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, apiResponse{Message: "POST to generate a worksheet"})
			return
		}

		status, body, err := callChalk(client, http.MethodPost, chalkURL+"/api/usage/generations", r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusBadGateway, apiResponse{Message: "quota service unreachable", Warning: err.Error()})
			return
		}

		switch status {
		case http.StatusOK:
			n := generated.Add(1)
			writeJSON(w, http.StatusOK, apiResponse{
				Message:   "worksheet generated",
				Worksheet: buildWorksheet(n),
				Quota:     body,
				Warning:   "anonymous callers all share this app's address; the engine only sees real users through bearer tokens",
			})
		case http.StatusForbidden:
			// The engine said no. Relay its payload untouched so a frontend
			// can render the upgrade prompt from limit_reached/require_upgrade.
			writeJSON(w, http.StatusForbidden, apiResponse{
				Message: "limit reached",
				Upsell:  body,
			})
		default:
			writeJSON(w, status, apiResponse{Message: "quota service refused the request", Upsell: body})
		}
	})
	mux.HandleFunc("/quota", func(w http.ResponseWriter, r *http.Request) {
		status, body, err := callChalk(client, http.MethodGet, chalkURL+"/api/usage", r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusBadGateway, apiResponse{Message: "quota service unreachable", Warning: err.Error()})
			return
		}
		writeJSON(w, status, apiResponse{Message: "current standing", Quota: body})
	})

	addr := fmt.Sprintf(":%s", port)
	log.Printf("toy materials app listening on %s (chalk at %s)", addr, chalkURL)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func callChalk(client *http.Client, method, url, authorization string) (int, json.RawMessage, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return 0, nil, err
	}
	if !json.Valid(body) {
		body, _ = json.Marshal(string(body))
	}
	return resp.StatusCode, body, nil
}

func buildWorksheet(n int64) *worksheet {
	return &worksheet{
		Title:   fmt.Sprintf("Practice Set #%d", n),
		Subject: "Fractions",
		Questions: []string{
			"Shade 3/4 of the circle.",
			"Which is larger: 2/3 or 3/5? Show your reasoning.",
			"Ana ate 1/8 of the pizza and Ben ate 2/8. How much is left?",
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
