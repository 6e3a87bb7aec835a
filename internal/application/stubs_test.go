package application_test

import (
	"sync"

	"github.com/example/autoescola/internal/application"
	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/session"
	"github.com/example/autoescola/internal/testfixtures"
)

type publishedEvent struct {
	userID string
	role   domain.Role
	event  session.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(userID string, role domain.Role, event session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{userID: userID, role: role, event: event})
}

func (p *recordingPublisher) kinds() []session.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]session.EventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Kind)
	}
	return out
}

func principalOf(f testfixtures.UserFixture) application.Principal {
	return application.Principal{UserID: f.ID, Role: f.Role}
}
