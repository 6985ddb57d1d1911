package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/database"
	"recruit-inbox/internal/middleware"
	"recruit-inbox/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:         config.DefaultConfig(),
		Database:       &config.DatabaseConfig{Type: config.DBTypeMemory},
		Auth:           &config.AuthConfig{JWTSecret: "main-test", TokenTTL: time.Hour},
		Inbox:          config.DefaultInboxConfig(),
		Logger:         &config.LoggerConfig{Level: "INFO", Format: "text"},
		AllowedOrigins: []string{"*"},
	}
}

func TestIntegrationFlow(t *testing.T) {
	cfg := testConfig()
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.shutdown()

	mem, ok := a.db.(*database.MemoryDB)
	require.True(t, ok)

	club, athlete := uuid.New(), uuid.New()
	mem.PutProfile(&models.Profile{ID: club, DisplayName: "Harbor United", Active: true})
	mem.PutProfile(&models.Profile{ID: athlete, DisplayName: "Sam", Active: true})

	auth := middleware.NewAuthenticator(cfg.Auth)
	clubToken, err := auth.GenerateToken(club)
	require.NoError(t, err)
	athleteToken, err := auth.GenerateToken(athlete)
	require.NoError(t, err)

	// Step 1: club writes to the athlete
	body, _ := json.Marshal(map[string]string{"counterpartId": athlete.String(), "content": "Open trial on Saturday"})
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+clubToken)
	w := httptest.NewRecorder()
	a.http.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Step 2: athlete sees one unread thread
	req = httptest.NewRequest(http.MethodGet, "/api/threads/unread-count", nil)
	req.Header.Set("Authorization", "Bearer "+athleteToken)
	w = httptest.NewRecorder()
	a.http.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var count struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &count))
	assert.Equal(t, 1, count.Count)

	// Step 3: health is public and reports the relay
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	a.http.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "relay")
}

func TestNewAppRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Type = "cassandra"
	_, err := newApp(context.Background(), cfg)
	assert.Error(t, err)
}
