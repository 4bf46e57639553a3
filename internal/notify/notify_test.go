package notify

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/tests/testutil"
)

type staticResolver struct {
	users []string
}

func (r staticResolver) InterestedUsers(context.Context, model.Task) ([]string, error) {
	return r.users, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestPaymentRecordedFansOut(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)

	task, err := st.CreateTask(ctx, model.Task{Name: "Flyers"})
	if err != nil {
		t.Fatalf("creating task: %v", err)
	}

	svc := New(st, testLogger(), []string{"manager"}, staticResolver{users: []string{"alice", "bob"}})
	svc.PaymentRecorded(ctx, task, "Task #1 has been fully paid.", "alice")

	// The actor is excluded, everyone else gets exactly one row.
	for _, user := range []string{"manager", "bob"} {
		unread, err := st.GetUnreadNotifications(ctx, user)
		if err != nil {
			t.Fatalf("GetUnreadNotifications(%s): %v", user, err)
		}
		if len(unread) != 1 {
			t.Fatalf("unread for %s = %d, want 1", user, len(unread))
		}
		if unread[0].Category != "Payment" {
			t.Errorf("category = %q", unread[0].Category)
		}
		if unread[0].TaskID != task.ID {
			t.Errorf("task id = %q", unread[0].TaskID)
		}
	}

	unread, err := st.GetUnreadNotifications(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUnreadNotifications(alice): %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("actor received %d notifications, want 0", len(unread))
	}
}

func TestPaymentRecordedNilResolver(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)

	task, err := st.CreateTask(ctx, model.Task{Name: "Flyers"})
	if err != nil {
		t.Fatalf("creating task: %v", err)
	}

	svc := New(st, testLogger(), []string{"manager"}, nil)
	svc.PaymentRecorded(ctx, task, "Task received a down payment.", "bob")

	unread, err := st.GetUnreadNotifications(ctx, "manager")
	if err != nil {
		t.Fatalf("GetUnreadNotifications: %v", err)
	}
	if len(unread) != 1 {
		t.Errorf("unread = %d, want 1", len(unread))
	}
}
