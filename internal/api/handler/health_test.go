package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]Checker
		status int
		body   string
	}{
		{"no checks", nil, http.StatusOK, `{"status":"ok","components":{}}`},
		{"all healthy", map[string]Checker{"database": ok, "redis": ok}, http.StatusOK,
			`{"status":"ok","components":{"database":"ok","redis":"ok"}}`},
		{"redis down", map[string]Checker{"database": ok, "redis": down}, http.StatusServiceUnavailable,
			`{"status":"degraded","components":{"database":"ok","redis":"connection refused"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", NewHealthHandler(tt.checks).Health)

			w := performRequest(router, "GET", "/health", nil)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}
