package chat_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/usecase/agent"
	"github.com/m-mizutani/dossier/pkg/usecase/chat"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

// Mock Storage
type mockStorage struct {
	data map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{data: make(map[string][]byte)}
}

func (m *mockStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &mockWriteCloser{Buffer: &bytes.Buffer{}, storage: m, key: key}, nil
}

type mockWriteCloser struct {
	*bytes.Buffer
	storage *mockStorage
	key     string
}

func (m *mockWriteCloser) Close() error {
	m.storage.data[m.key] = m.Buffer.Bytes()
	return nil
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.data[key]
	if !ok {
		return nil, goerr.Wrap(adapter.ErrObjectNotFound, "data not found", goerr.V("key", key))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// mockAgent answers from a list and records the history it was given
type mockAgent struct {
	answers  []*agent.Outcome
	received [][]*genai.Content
}

func (m *mockAgent) Run(ctx context.Context, question string, opts ...agent.RunOption) (*agent.Outcome, error) {
	m.received = append(m.received, agent.HistoryOf(opts...))
	out := m.answers[0]
	m.answers = m.answers[1:]
	return out, nil
}

func answered(text string) *agent.Outcome {
	return &agent.Outcome{Answer: text, Reason: agent.ReasonAnswered}
}

func TestSessionCarriesAnswers(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	mock := &mockAgent{answers: []*agent.Outcome{
		answered("Your latest project is Career Bot."),
		{Answer: agent.FallbackMessage, Reason: agent.ReasonBudgetExhausted},
		answered("It uses Go and RAG."),
	}}

	session, err := chat.New(ctx, chat.NewInput{Agent: mock, Storage: storage})
	gt.NoError(t, err)

	_, err = session.Send(ctx, "What's my latest project?")
	gt.NoError(t, err)
	gt.NotEqual(t, session.ID(), model.HistoryID(""))

	out, err := session.Send(ctx, "Everything about everything")
	gt.NoError(t, err)
	gt.True(t, out.Fallback())

	_, err = session.Send(ctx, "Which technologies does it use?")
	gt.NoError(t, err)

	gt.A(t, mock.received[0]).Length(0)
	gt.A(t, mock.received[1]).Length(2)
	gt.A(t, mock.received[2]).Length(2)
	gt.Equal(t, mock.received[2][1].Parts[0].Text, "Your latest project is Career Bot.")

	gt.A(t, session.History().Contents).Length(4)
	gt.Equal(t, session.History().Title, "What's my latest project?")
	gt.Map(t, storage.data).HasKey("transcripts/" + string(session.ID()) + ".json")
}

func TestSessionResume(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()

	first, err := chat.New(ctx, chat.NewInput{
		Agent:   &mockAgent{answers: []*agent.Outcome{answered("Career Bot.")}},
		Storage: storage,
	})
	gt.NoError(t, err)
	_, err = first.Send(ctx, "latest project?")
	gt.NoError(t, err)

	id := first.ID()
	mock := &mockAgent{answers: []*agent.Outcome{answered("Go and RAG.")}}
	resumed, err := chat.New(ctx, chat.NewInput{Agent: mock, Storage: storage, HistoryID: &id})
	gt.NoError(t, err)
	gt.Equal(t, resumed.ID(), id)

	_, err = resumed.Send(ctx, "which technologies?")
	gt.NoError(t, err)
	gt.A(t, mock.received[0]).Length(2)
	gt.A(t, resumed.History().Contents).Length(4)
}

func TestSessionResumeMissing(t *testing.T) {
	missing := model.HistoryID("nope")
	_, err := chat.New(context.Background(), chat.NewInput{
		Agent:     &mockAgent{},
		Storage:   newMockStorage(),
		HistoryID: &missing,
	})
	gt.Error(t, err)

	_, err = chat.New(context.Background(), chat.NewInput{Agent: &mockAgent{}, HistoryID: &missing})
	gt.Error(t, err)
}

func TestSessionWithoutStorage(t *testing.T) {
	session, err := chat.New(context.Background(), chat.NewInput{
		Agent: &mockAgent{answers: []*agent.Outcome{answered("Career Bot.")}},
	})
	gt.NoError(t, err)
	_, err = session.Send(context.Background(), "latest project?")
	gt.NoError(t, err)
	gt.Equal(t, session.ID(), model.HistoryID(""))
	gt.A(t, session.History().Contents).Length(2)
}
