package flow

import (
	"sync"
	"time"

	"github.com/luxbind/wiz-core/internal/identity"
	"github.com/luxbind/wiz-core/internal/wizlan"
)

// State is the position of a session in the binding state machine.
type State string

const (
	StateStart                State = "start"
	StateDiscovering          State = "discovering"
	StateAwaitingUserHost     State = "awaiting_user_host"
	StateConfirmingDiscovered State = "confirming_discovered"
	StateValidating           State = "validating"
	StateResolvingIdentity    State = "resolving_identity"
	StateNaming               State = "naming"
	StateCommitted            State = "committed"
	StateAborted              State = "aborted"
)

// Step names the form a ShowForm result asks the user to fill in.
type Step string

const (
	StepUser             Step = "user"
	StepPickDevice       Step = "pick_device"
	StepDiscoveryConfirm Step = "discovery_confirm"
)

// Trigger records how a flow started.
type Trigger string

const (
	TriggerUser Trigger = "user"
	TriggerHint Trigger = "hint"
)

// ResultType discriminates Result values.
type ResultType string

const (
	// ResultForm asks the caller to present a form.
	ResultForm ResultType = "form"

	// ResultAbort ends the flow without an entry.
	ResultAbort ResultType = "abort"

	// ResultEntry ends the flow with a committed entry.
	ResultEntry ResultType = "entry"
)

// Result is the outcome of advancing a flow by one event.
type Result struct {
	Type   ResultType `json:"type"`
	FlowID string     `json:"flow_id"`

	// Form results.
	Step         Step              `json:"step,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
	Choices      map[string]string `json:"choices,omitempty"`
	ShowLink     bool              `json:"show_link,omitempty"`

	// Abort results.
	AbortReason string `json:"abort_reason,omitempty"`

	// Entry results.
	Entry *identity.BindingEntry `json:"entry,omitempty"`
}

// Session is one in-progress binding flow.
type Session struct {
	ID        string
	State     State
	Trigger   Trigger
	CreatedAt time.Time
	UpdatedAt time.Time

	// mu serializes advances; concurrent requests for the same flow id
	// run one at a time and the loser sees the new state.
	mu sync.Mutex

	// hinted is the device a hint-started flow is about.
	hinted *wizlan.DiscoveredBulb

	// scanned maps normalised MAC to the scan answer, for pick steps.
	scanned map[string]wizlan.DiscoveredBulb
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}

// terminal reports whether the session can no longer advance.
func (s *Session) terminal() bool {
	return s.State == StateCommitted || s.State == StateAborted
}
