package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"livechat-service/internal/models"
	"livechat-service/internal/repositories"
)

// Assigner pairs a customer requesting support with the least-loaded agent.
// The whole read-count-create sequence runs under one mutex so two concurrent
// requests cannot both pick the same minimum-count agent before either session
// is committed.
type Assigner struct {
	mu       sync.Mutex
	sessions repositories.SessionRepository
	users    repositories.UserRepository
}

// NewAssigner constructs an Assigner.
func NewAssigner(sessions repositories.SessionRepository, users repositories.UserRepository) *Assigner {
	return &Assigner{sessions: sessions, users: users}
}

// Assign selects the support agent with the fewest active sessions, ties
// broken by the stable id order of ListByRole, and creates an active session
// pairing the customer with that agent. The session is named after the
// participants when no explicit name is given.
func (a *Assigner) Assign(ctx context.Context, customerID int) (models.ChatSession, models.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	agents, err := a.users.ListByRole(ctx, models.RoleSupport)
	if err != nil {
		return models.ChatSession{}, models.User{}, fmt.Errorf("list support agents: %w", err)
	}
	if len(agents) == 0 {
		return models.ChatSession{}, models.User{}, ErrNoAgentAvailable
	}

	best := agents[0]
	bestCount := -1
	for _, agent := range agents {
		count, err := a.sessions.CountActiveForUser(ctx, agent.ID)
		if err != nil {
			return models.ChatSession{}, models.User{}, fmt.Errorf("count sessions for agent %d: %w", agent.ID, err)
		}
		if bestCount == -1 || count < bestCount {
			best = agent
			bestCount = count
		}
	}

	customer, err := a.users.GetUser(ctx, customerID)
	if err != nil {
		return models.ChatSession{}, models.User{}, fmt.Errorf("lookup customer %d: %w", customerID, err)
	}

	name := sessionName("", []models.User{customer, best})
	session, err := a.sessions.CreateSession(ctx, name, []int{customer.ID, best.ID})
	if err != nil {
		return models.ChatSession{}, models.User{}, fmt.Errorf("create session: %w", err)
	}
	return session, best, nil
}

// sessionName returns name unchanged when set, and otherwise joins the
// participants' display names, skipping blanks.
func sessionName(name string, participants []models.User) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}
