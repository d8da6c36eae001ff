package groupchat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/groupchat/internal/agentcontainer"
	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
)

// blockingSelectorClient simulates an in-flight selector LLM round-trip:
// Create blocks until either its context is canceled or release is closed,
// letting a test control exactly when the call resolves relative to other
// manager operations.
type blockingSelectorClient struct {
	started  chan struct{}
	canceled chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newBlockingSelectorClient() *blockingSelectorClient {
	return &blockingSelectorClient{
		started:  make(chan struct{}),
		canceled: make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (b *blockingSelectorClient) Create(ctx context.Context, _ []llm.Message, _ llm.Options) (llm.Result, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		close(b.canceled)
		return llm.Result{}, ctx.Err()
	case <-b.release:
		return llm.Result{Content: "a"}, nil
	}
}

func (b *blockingSelectorClient) CreateStream(context.Context, []llm.Message, llm.Options) (llm.StreamIterator, error) {
	panic("blockingSelectorClient: streaming not used by selection")
}

// fixedClient answers every Create call with the same canned content,
// standing in for an agent container's model in tests that only care about
// the manager's interrupt/selection plumbing.
type fixedClient struct{ content string }

func (f fixedClient) Create(context.Context, []llm.Message, llm.Options) (llm.Result, error) {
	return llm.Result{Content: f.content}, nil
}

func (f fixedClient) CreateStream(context.Context, []llm.Message, llm.Options) (llm.StreamIterator, error) {
	panic("fixedClient: streaming not used in this test")
}

func newTestContainer(t *testing.T, name string) *agentcontainer.Container {
	t.Helper()
	c, err := agentcontainer.New(agentcontainer.Config{
		Name:                 name,
		SystemPromptTemplate: "you are " + name,
		Client:               fixedClient{content: "ok from " + name},
	})
	if err != nil {
		t.Fatalf("agentcontainer.New(%s): %v", name, err)
	}
	return c
}

// newInterruptTestManager builds a two-participant manager whose speaker
// selector uses client, with a one-turn cap so a successfully dispatched
// agent response terminates the run instead of triggering a second
// selection round.
func newInterruptTestManager(t *testing.T, client llm.Client) *Manager {
	t.Helper()
	containers := map[string]*agentcontainer.Container{
		"alice": newTestContainer(t, "alice"),
		"bob":   newTestContainer(t, "bob"),
	}
	m, err := New(Config{
		Name:         "manager",
		Participants: []string{"alice", "bob"},
		Containers:   containers,
		Selection: SelectionConfig{
			SelectorPromptTemplate: "pick the next speaker from {{.Participants}}",
			MaxSelectorAttempts:    3,
			Client:                 client,
		},
		MaxTurns: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// TestInterruptPreemptsInFlightSelectionCall proves spec.md §4.1's Interrupt
// contract (spec.md:271, "An interrupt during an LLM selection cancels it
// within one suspension point"): Interrupt must return promptly even while
// the selector's LLM call is blocked in flight, and it must actually cancel
// that call's context rather than merely queue behind it.
func TestInterruptPreemptsInFlightSelectionCall(t *testing.T) {
	client := newBlockingSelectorClient()
	m := newInterruptTestManager(t, client)

	if err := m.Start(context.Background(), "kick things off"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-client.started:
	case <-time.After(time.Second):
		t.Fatal("selector LLM call never started")
	}

	done := make(chan struct{})
	go func() {
		m.Interrupt(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Interrupt did not return promptly; it is queued behind the in-flight selection call")
	}

	select {
	case <-client.canceled:
	case <-time.After(time.Second):
		t.Fatal("expected Interrupt to cancel the in-flight selector LLM call's context")
	}

	thread := m.Thread(context.Background())
	found := false
	for _, ev := range thread {
		if stop, ok := ev.(events.StopMessage); ok && stop.Content == events.StopReasonUserInterrupt {
			found = true
		}
	}
	if !found {
		t.Fatal("expected thread to contain a user-interrupt StopMessage after Interrupt")
	}

	// spec.md:271's second half: a subsequent SendUserDirected succeeds.
	if err := m.SendUserDirected(context.Background(), "alice", "go ahead", 0); err != nil {
		t.Fatalf("SendUserDirected after interrupt: %v", err)
	}
}

// TestInterruptDiscardsStaleSelectionResult covers the race the selectToken
// guard exists for: Interrupt cancels an in-flight selection, then
// SendUserDirected starts a fresh round before the canceled selection's
// goroutine has actually delivered its (now-stale) result back through the
// mailbox. The stale result must not be allowed to terminate the run that
// SendUserDirected just resumed.
func TestInterruptDiscardsStaleSelectionResult(t *testing.T) {
	client := newBlockingSelectorClient()
	m := newInterruptTestManager(t, client)

	if err := m.Start(context.Background(), "kick things off"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-client.started:
	case <-time.After(time.Second):
		t.Fatal("selector LLM call never started")
	}

	m.Interrupt(context.Background())

	select {
	case <-client.canceled:
	case <-time.After(time.Second):
		t.Fatal("expected Interrupt to cancel the in-flight selector LLM call's context")
	}

	if err := m.SendUserDirected(context.Background(), "alice", "go ahead", 0); err != nil {
		t.Fatalf("SendUserDirected after interrupt: %v", err)
	}

	// Give the stale selection goroutine's already-canceled call a chance
	// to deliver its error result through the mailbox; it must be
	// discarded rather than mistaken for a failure of the new round. A
	// legitimate max-turns StopMessage from the resumed dispatch is fine;
	// a "speaker selection failed" one would mean the stale result leaked
	// through and clobbered the round SendUserDirected just resumed.
	time.Sleep(50 * time.Millisecond)

	thread := m.Thread(context.Background())
	for _, ev := range thread {
		if stop, ok := ev.(events.StopMessage); ok && strings.Contains(stop.Content, "speaker selection failed") {
			t.Fatalf("stale selection result incorrectly terminated the resumed run: %q", stop.Content)
		}
	}
}
