package telegram

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeMessenger struct {
	sent    []string
	edited  []string
	nextID  int
	editErr error
}

func (f *fakeMessenger) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.nextID++
	f.sent = append(f.sent, what.(string))
	return &tele.Message{ID: f.nextID, Chat: to.(*tele.Chat)}, nil
}

func (f *fakeMessenger) Edit(msg tele.Editable, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edited = append(f.edited, what.(string))
	m := msg.(*tele.Message)
	return &tele.Message{ID: m.ID, Chat: m.Chat}, nil
}

func TestReplierSendsThenEditsInPlace(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	replier := NewReplier(messenger, &tele.Chat{ID: 42})

	status, err := replier.Reply("Starting to share with 3 identities...")
	require.NoError(t, err)
	require.NoError(t, status.Update("Sharing... (1/3)"))
	require.NoError(t, status.Update("Sharing... (1/3)"))
	require.NoError(t, status.Update("Shared with 3/3 identities"))

	assert.Equal(t, []string{"Starting to share with 3 identities..."}, messenger.sent)
	assert.Equal(t, []string{"Sharing... (1/3)", "Shared with 3/3 identities"}, messenger.edited)
}

func TestStatusMessageReturnsEditError(t *testing.T) {
	t.Parallel()

	editErr := errors.New("message to edit not found")
	messenger := &fakeMessenger{editErr: editErr}

	status, err := NewReplier(messenger, &tele.Chat{ID: 1}).Reply("hello")
	require.NoError(t, err)
	require.ErrorIs(t, status.Update("changed"), editErr)
}

func TestRequesterOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "alpha", string(requesterOf(&tele.Message{Sender: &tele.User{Username: "alpha"}})))
	assert.Empty(t, requesterOf(&tele.Message{}))
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Token: " "}, nil, zerolog.Nop())
	require.Error(t, err)
}
