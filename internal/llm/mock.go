package llm

import "context"

// MockProvider is a scriptable provider for tests.
type MockProvider struct {
	// Reply is returned by every Chat call when Err is nil.
	Reply string
	// Err, when set, is returned by every call.
	Err error
	// History records the message history of each call.
	History [][]Message
}

var _ Provider = (*MockProvider)(nil)

// Chat records the history and returns the scripted reply.
func (m *MockProvider) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	cloned := make([]Message, len(history))
	copy(cloned, history)
	m.History = append(m.History, cloned)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}
