package model

import "google.golang.org/genai"

// Step pairs a dispatched tool call with its result
type Step struct {
	Iteration int         `json:"iteration"`
	Call      ToolCall    `json:"call"`
	Result    *ToolResult `json:"result"`
	CacheHit  bool        `json:"cache_hit,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
}

// Conversation is the state of one question-answer cycle. It is a value:
// every With* method returns a new Conversation sharing no mutable backing
// storage with the receiver, so earlier snapshots stay valid.
type Conversation struct {
	question  string
	turns     []*genai.Content
	steps     []Step
	iteration int
}

// NewConversation starts a cycle. history holds turns carried over from
// previous cycles and is copied.
func NewConversation(question string, history []*genai.Content) Conversation {
	turns := make([]*genai.Content, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, genai.NewContentFromText(question, genai.RoleUser))
	return Conversation{question: question, turns: turns}
}

func (c Conversation) Question() string { return c.question }
func (c Conversation) Iteration() int   { return c.iteration }

// Turns returns a copy of the generator turns
func (c Conversation) Turns() []*genai.Content {
	out := make([]*genai.Content, len(c.turns))
	copy(out, c.turns)
	return out
}

// Steps returns a copy of the dispatched steps in request order
func (c Conversation) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// Results returns the tool results of this cycle in request order
func (c Conversation) Results() []*ToolResult {
	out := make([]*ToolResult, 0, len(c.steps))
	for _, s := range c.steps {
		out = append(out, s.Result)
	}
	return out
}

// Called reports whether any step invoked the named tool
func (c Conversation) Called(name string) bool {
	for _, s := range c.steps {
		if s.Call.Name == name {
			return true
		}
	}
	return false
}

// WithTurn appends a generator turn
func (c Conversation) WithTurn(turn *genai.Content) Conversation {
	turns := make([]*genai.Content, len(c.turns), len(c.turns)+1)
	copy(turns, c.turns)
	c.turns = append(turns, turn)
	return c
}

// WithSteps appends steps, keeping the given order
func (c Conversation) WithSteps(steps ...Step) Conversation {
	merged := make([]Step, len(c.steps), len(c.steps)+len(steps))
	copy(merged, c.steps)
	c.steps = append(merged, steps...)
	return c
}

// Next advances the iteration counter
func (c Conversation) Next() Conversation {
	c.iteration++
	return c
}
