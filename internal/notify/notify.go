// Package notify fans payment activity out to interested users as
// persisted notifications. Delivery is fire-and-forget: a failed
// notification is logged and dropped, never surfaced to the operation
// that triggered it.
package notify

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/internal/store"
)

// Resolver supplies the users attached to a task (assigned employees,
// subtask owners). The task system owns that data; a nil resolver
// means only the static recipients are notified.
type Resolver interface {
	InterestedUsers(ctx context.Context, task model.Task) ([]string, error)
}

// Service implements payments.Notifier on top of the store.
type Service struct {
	store store.Store
	log   *logrus.Logger

	// always are notified about every payment, e.g. managers and
	// front-desk users from the config.
	always []string

	resolver Resolver
}

// New creates a notification service. resolver may be nil.
func New(st store.Store, log *logrus.Logger, always []string, resolver Resolver) *Service {
	return &Service{
		store:    st,
		log:      log,
		always:   always,
		resolver: resolver,
	}
}

// PaymentRecorded persists one notification per interested user,
// excluding the actor who made the payment.
func (s *Service) PaymentRecorded(ctx context.Context, task model.Task, message, actor string) {
	users := make(map[string]bool)
	for _, u := range s.always {
		users[u] = true
	}

	if s.resolver != nil {
		resolved, err := s.resolver.InterestedUsers(ctx, task)
		if err != nil {
			s.log.WithField("task", task.ID).WithError(err).Warn("resolving interested users")
		}
		for _, u := range resolved {
			users[u] = true
		}
	}

	// The actor already knows what they did.
	delete(users, actor)

	recipients := make([]string, 0, len(users))
	for u := range users {
		if u != "" {
			recipients = append(recipients, u)
		}
	}
	sort.Strings(recipients)

	for _, user := range recipients {
		err := s.store.CreateNotification(ctx, model.Notification{
			User:     user,
			TaskID:   task.ID,
			Message:  message,
			Category: "Payment",
		})
		if err != nil {
			s.log.WithField("user", user).WithError(err).Warn("creating notification")
		}
	}
}
