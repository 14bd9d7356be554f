package lists_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/pkg/directory"
	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/lists"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/notify"
)

type recordingNotifier struct {
	mu      sync.Mutex
	sent    map[string]notify.Notice
	failFor map[string]error
}

func (n *recordingNotifier) NotifyUser(_ context.Context, uid string, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[uid]; err != nil {
		return err
	}
	if n.sent == nil {
		n.sent = map[string]notify.Notice{}
	}
	n.sent[uid] = notice
	return nil
}

type recordingMailer struct {
	to      []string
	subject string
	err     error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, _ string) (string, error) {
	m.to = append(m.to, to)
	m.subject = subject
	return "msg-1", m.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T) docstore.Store {
	t.Helper()
	store, err := docstore.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	users := map[string]model.User{
		"owner": {Email: "ana@example.com", DisplayName: "Ana"},
		"bob":   {Email: "bob@example.com", DisplayName: "Bob"},
		"cleo":  {Email: "cleo@example.com", DisplayName: "Cleo"},
		"dan":   {Email: "dan@example.com", DisplayName: "Dan"},
	}
	for id, u := range users {
		require.NoError(t, store.Set(ctx, docstore.NewRef(model.CollectionUsers, id), u.Fields()))
	}
	list := model.GroceryList{Name: "Weekend BBQ", OwnerID: "owner", Members: []string{"owner", "bob", "cleo"}}
	require.NoError(t, store.Set(ctx, docstore.NewRef(model.CollectionLists, "l1"), list.Fields()))
	return store
}

func TestAddMember(t *testing.T) {
	store := seed(t)
	notifier := &recordingNotifier{}
	mailer := &recordingMailer{}
	svc := lists.NewService(store, directory.New(store), notifier, quietLogger(), lists.WithMailer(mailer))
	ctx := context.Background()

	id, err := svc.AddMember(ctx, lists.AddMemberInput{ListID: "l1", InviterID: "owner", Email: " DAN@example.com "})
	require.NoError(t, err)
	assert.Equal(t, "dan", id.UID)

	list, err := svc.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "bob", "cleo", "dan"}, list.Members)

	require.Contains(t, notifier.sent, "dan")
	assert.Equal(t, model.NotificationListInvite, notifier.sent["dan"].Type)
	assert.Equal(t, []string{"dan@example.com"}, mailer.to)
	assert.Equal(t, `Ana shared "Weekend BBQ" with you`, mailer.subject)
}

func TestAddMember_NotificationFailureKeepsMembership(t *testing.T) {
	store := seed(t)
	notifier := &recordingNotifier{failFor: map[string]error{"dan": errors.New("push down")}}
	mailer := &recordingMailer{err: errors.New("smtp down")}
	svc := lists.NewService(store, directory.New(store), notifier, quietLogger(), lists.WithMailer(mailer))
	ctx := context.Background()

	_, err := svc.AddMember(ctx, lists.AddMemberInput{ListID: "l1", InviterID: "bob", Email: "dan@example.com"})
	require.NoError(t, err)

	list, err := svc.Get(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, list.HasMember("dan"))
}

func TestAddMember_AlreadyMember(t *testing.T) {
	store := seed(t)
	notifier := &recordingNotifier{}
	svc := lists.NewService(store, directory.New(store), notifier, quietLogger())

	id, err := svc.AddMember(context.Background(), lists.AddMemberInput{ListID: "l1", InviterID: "owner", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "bob", id.UID)
	assert.Empty(t, notifier.sent)
}

func TestAddMember_Errors(t *testing.T) {
	store := seed(t)
	svc := lists.NewService(store, directory.New(store), &recordingNotifier{}, quietLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		in   lists.AddMemberInput
		want error
	}{
		{"missing list", lists.AddMemberInput{InviterID: "owner", Email: "dan@example.com"}, model.ErrInvalidInput},
		{"bad email", lists.AddMemberInput{ListID: "l1", InviterID: "owner", Email: "dan"}, model.ErrInvalidInput},
		{"unknown list", lists.AddMemberInput{ListID: "nope", InviterID: "owner", Email: "dan@example.com"}, model.ErrNotFound},
		{"inviter not member", lists.AddMemberInput{ListID: "l1", InviterID: "dan", Email: "dan@example.com"}, model.ErrInvalidInput},
		{"unknown invitee", lists.AddMemberInput{ListID: "l1", InviterID: "owner", Email: "zed@example.com"}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddMember(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNotifyItemAdded(t *testing.T) {
	store := seed(t)
	notifier := &recordingNotifier{failFor: map[string]error{"bob": errors.New("no device")}}
	svc := lists.NewService(store, directory.New(store), notifier, quietLogger(), lists.WithConcurrency(2))

	report, err := svc.NotifyItemAdded(context.Background(), lists.ItemAdded{ItemID: "i1", ListID: "l1", Name: "Milk", AddedBy: "owner"})
	require.NoError(t, err)
	assert.Len(t, report.Outcomes, 2)
	assert.Equal(t, 1, report.Succeeded())
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "bob", report.Failures()[0].Recipient)

	require.Contains(t, notifier.sent, "cleo")
	assert.Equal(t, "Ana added Milk", notifier.sent["cleo"].Body)
	assert.NotContains(t, notifier.sent, "owner")
}

func TestNotifyItemAdded_Errors(t *testing.T) {
	store := seed(t)
	svc := lists.NewService(store, directory.New(store), &recordingNotifier{}, quietLogger())
	ctx := context.Background()

	_, err := svc.NotifyItemAdded(ctx, lists.ItemAdded{ListID: "l1"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = svc.NotifyItemAdded(ctx, lists.ItemAdded{ListID: "gone", AddedBy: "owner"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRecipients(t *testing.T) {
	l := &model.GroceryList{OwnerID: "a", Members: []string{"a", "b", "", "c", "b"}}
	assert.Equal(t, []string{"a", "c"}, lists.Recipients(l, "b"))
	assert.Empty(t, lists.Recipients(&model.GroceryList{OwnerID: "a"}, "a"))
}
