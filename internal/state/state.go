package state

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrorReporter is implemented by anything that can flip the process health flag.
type ErrorReporter interface {
	SetErrorState(err error)
}

// HealthChecker is the read side used by the health endpoint.
type HealthChecker interface {
	IsHealthy() bool
}

// ErrorEvent is published on ErrorRaised.
type ErrorEvent struct {
	Err  error
	Time time.Time
}

// State is the application context shared by the bot, the indexer client and the HTTP server.
type State struct {
	EventBus *EventBus

	telegramSecret string

	healthMu  sync.RWMutex
	errState  bool
	lastError error
}

var (
	_ ErrorReporter = (*State)(nil)
	_ HealthChecker = (*State)(nil)
)

// InitializeState creates the context with a fresh webhook secret and a healthy flag.
func InitializeState() *State {
	secret, err := newSecret()
	if err != nil {
		log.Fatalf("Failed to generate telegram secret: %v", err)
	}
	return &State{
		EventBus:       NewEventBus(),
		telegramSecret: secret,
	}
}

func newSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// TelegramSecret is the random path component of the webhook route.
func (s *State) TelegramSecret() string {
	return s.telegramSecret
}

// SetErrorState marks the process unhealthy. The flag is sticky until ClearErrorState.
func (s *State) SetErrorState(err error) {
	s.healthMu.Lock()
	s.errState = true
	s.lastError = err
	s.healthMu.Unlock()

	log.Warnf("Error state set: %v", err)
	s.EventBus.Publish(ErrorRaised, ErrorEvent{Err: err, Time: time.Now()})
}

func (s *State) ClearErrorState() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.errState = false
	s.lastError = nil
}

func (s *State) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return !s.errState
}

func (s *State) LastError() error {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.lastError
}
