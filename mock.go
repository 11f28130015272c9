package ledgerhid

import (
	"context"
	"fmt"
	"sync"
)

// MockExchanger is an in-memory Exchanger answering from a script. It records
// every command it receives, which lets code built on Exchanger be tested
// without a device.
type MockExchanger struct {
	mu       sync.Mutex
	answers  []*Answer
	errs     []error
	commands []*Command
}

// NewMockExchanger returns a mock replying with the given answers in order.
func NewMockExchanger(answers ...*Answer) *MockExchanger {
	return &MockExchanger{answers: answers, errs: make([]error, len(answers))}
}

// Push appends an answer to the script.
func (m *MockExchanger) Push(answer *Answer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, answer)
	m.errs = append(m.errs, nil)
}

// PushError appends a transport failure to the script.
func (m *MockExchanger) PushError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, nil)
	m.errs = append(m.errs, err)
}

// Exchange implements Exchanger.
func (m *MockExchanger) Exchange(ctx context.Context, cmd *Command) (*Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := cmd.Serialize(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands = append(m.commands, cmd)
	if len(m.answers) == 0 {
		return nil, fmt.Errorf("%w: mock script exhausted", ErrCommunication)
	}
	answer, err := m.answers[0], m.errs[0]
	m.answers, m.errs = m.answers[1:], m.errs[1:]
	return answer, err
}

// Commands returns the commands received so far.
func (m *MockExchanger) Commands() []*Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Command(nil), m.commands...)
}
