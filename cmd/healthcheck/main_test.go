package main

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	var unhealthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	assert.NoError(t, check(server.URL+"/health", time.Second))

	unhealthy.Store(true)
	assert.EqualError(t, check(server.URL+"/health", time.Second), "status 500")

	server.Close()
	assert.Error(t, check(server.URL+"/health", 100*time.Millisecond))
}
