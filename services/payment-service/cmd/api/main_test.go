package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/gateway"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_ADDR", "STORAGE_BACKEND", "PAYMENT_DECLINE_RATE", "OUTBOX_POLL_INTERVAL", "MONGODB_DATABASE"} {
		t.Setenv(key, "")
	}

	config := loadConfig()
	assert.Equal(t, ":8082", config.ServerAddr)
	assert.Equal(t, "mongodb", config.StorageBackend)
	assert.Equal(t, "payment_db", config.MongoDB.Database)
	assert.Equal(t, gateway.DefaultDeclineRate, config.DeclineRate)
	assert.Equal(t, time.Second, config.OutboxInterval)
	assert.Equal(t, serviceName, config.Kafka.ClientID)
}

func TestLoadConfig_DeclineRate(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"0", 0},
		{"0.25", 0.25},
		{"1", 1},
		{"1.5", gateway.DefaultDeclineRate},
		{"-0.1", gateway.DefaultDeclineRate},
		{"often", gateway.DefaultDeclineRate},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("PAYMENT_DECLINE_RATE", tt.value)
			assert.Equal(t, tt.want, loadConfig().DeclineRate)
		})
	}
}

func stubServer(t *testing.T, fn func(srv *http.Server) error) {
	t.Helper()
	original := startHTTPServer
	startHTTPServer = fn
	t.Cleanup(func() { startHTTPServer = original })
}

func TestRun_StopsOnSignal(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stubServer(t, func(srv *http.Server) error {
		<-release
		return http.ErrServerClosed
	})

	signalCh := make(chan os.Signal, 1)
	signalCh <- syscall.SIGTERM

	require.NoError(t, run(context.Background(), signalCh))
}

func TestRun_ReturnsServerError(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")

	bindErr := errors.New("listen tcp :8082: bind: address already in use")
	stubServer(t, func(srv *http.Server) error {
		return bindErr
	})

	err := run(context.Background(), make(chan os.Signal))
	assert.ErrorIs(t, err, bindErr)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PAYMENT_TEST_KEY", "value")
	assert.Equal(t, "value", getEnv("PAYMENT_TEST_KEY", "default"))
	assert.Equal(t, "default", getEnv("PAYMENT_TEST_MISSING", "default"))
}
