// Package main implements a mock Etsy API server for local development.
// It serves canned responses from a JSON fixture to simulate the Etsy v3
// shop endpoints and OAuth token endpoint without requiring real Etsy
// credentials.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// shopFixture holds the canned shop data served by the mock.
type shopFixture struct {
	Shop         json.RawMessage   `json:"shop"`
	Listings     []json.RawMessage `json:"listings"`
	Transactions []json.RawMessage `json:"transactions"`
}

// pagedResponse is the Etsy paged envelope.
type pagedResponse struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

func main() {
	port := flag.Int("port", 8089, "port to listen on")
	fixtureFile := flag.String("fixture", "tools/mock-server/testdata/shop_fixture.json", "path to shop fixture")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fixture, err := loadFixture(*fixtureFile)
	if err != nil {
		logger.Error("failed to load fixture", "path", *fixtureFile, "error", err)
		os.Exit(1)
	}
	logger.Info("loaded fixture",
		"listings", len(fixture.Listings),
		"transactions", len(fixture.Transactions),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v3/public/oauth/token", tokenHandler(logger))
	mux.HandleFunc("GET /v3/application/shops/{shop_id}", shopHandler(logger, fixture))
	mux.HandleFunc("GET /v3/application/shops/{shop_id}/listings/active", pagedHandler(logger, "listings", fixture.Listings))
	mux.HandleFunc("GET /v3/application/shops/{shop_id}/transactions", pagedHandler(logger, "transactions", fixture.Transactions))

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("starting mock Etsy server", "addr", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      requestLogger(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func loadFixture(path string) (*shopFixture, error) {
	data, err := os.ReadFile(path) //nolint:gosec // fixture path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var f shopFixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	return &f, nil
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery)
		next.ServeHTTP(w, r)
	})
}

func tokenHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Require the refresh-token grant fields (don't verify values).
		if err := r.ParseForm(); err != nil ||
			r.PostFormValue("grant_type") != "refresh_token" ||
			r.PostFormValue("refresh_token") == "" {
			logger.Warn("token request missing refresh_token grant")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			//nolint:errcheck,gosec // best-effort write to HTTP response in mock server
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "refresh_token grant required",
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck,gosec // best-effort write to HTTP response in mock server
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "mock-token-" + strconv.FormatInt(time.Now().UnixNano(), 16),
			"refresh_token": "mock-refresh-" + strconv.FormatInt(int64(os.Getpid()), 16),
			"expires_in":    3600,
			"token_type":    "Bearer",
		})
		logger.Info("issued mock token")
	}
}

func shopHandler(logger *slog.Logger, fixture *shopFixture) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerAuthed(r) {
			writeUnauthorized(w, logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck,gosec // best-effort write to HTTP response in mock server
		w.Write(fixture.Shop)
		logger.Info("served shop", "shop_id", r.PathValue("shop_id"))
	}
}

func pagedHandler(logger *slog.Logger, name string, items []json.RawMessage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerAuthed(r) {
			writeUnauthorized(w, logger)
			return
		}

		limit := 25
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		offset := 0
		if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
			offset = v
		}

		page := items
		if offset >= len(page) {
			page = nil
		} else {
			end := min(offset+limit, len(page))
			page = page[offset:end]
		}

		// Return empty array instead of null when no results.
		if page == nil {
			page = []json.RawMessage{}
		}

		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck,gosec // best-effort write to HTTP response in mock server
		json.NewEncoder(w).Encode(pagedResponse{Count: len(items), Results: page})
		logger.Info("served page",
			"endpoint", name, "total", len(items), "returned", len(page),
			"offset", offset, "limit", limit,
		)
	}
}

func bearerAuthed(r *http.Request) bool {
	return r.Header.Get("Authorization") != "" && r.Header.Get("x-api-key") != ""
}

func writeUnauthorized(w http.ResponseWriter, logger *slog.Logger) {
	logger.Warn("request missing Bearer token or api key")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck,gosec // best-effort write to HTTP response in mock server
	json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token"})
}
