package scraper

import "fmt"

// State is a traversal state of a scrape session.
type State string

const (
	StateIdle                State = "idle"
	StateNavigatingPaths     State = "navigating_paths"
	StateExtractingPathsPage State = "extracting_paths_page"
	StateNextPage            State = "next_page"
	StateNavigatingTraining  State = "navigating_training"
	StateExtractingSteps     State = "extracting_steps"
	StateUnblockingSteps     State = "unblocking_steps"
	StateNavigatingStep      State = "navigating_step"
	StateExtractingContent   State = "extracting_content"
	StateDone                State = "done"
	StateFailed              State = "failed"
	StateCancelled           State = "cancelled"
)

var validTransitions = map[State][]State{
	StateIdle: {
		StateNavigatingPaths,    // Full run
		StateNavigatingTraining, // Staged run from persisted trainings
		StateUnblockingSteps,    // Content pass over persisted steps
	},
	StateNavigatingPaths: {
		StateExtractingPathsPage,
	},
	StateExtractingPathsPage: {
		StateNextPage,
		StateDone,
	},
	StateNextPage: {
		StateExtractingPathsPage, // Active page confirmed
		StateDone,                // Last page or advance failed
	},
	StateNavigatingTraining: {
		StateExtractingSteps,
		StateDone, // Training page unreachable
	},
	StateExtractingSteps: {
		StateUnblockingSteps,
		StateNavigatingTraining, // Next training, contents disabled
		StateDone,
	},
	StateUnblockingSteps: {
		StateNavigatingStep,
		StateDone, // No steps
	},
	StateNavigatingStep: {
		StateExtractingContent,
		StateDone, // Click failed, partial result
	},
	StateExtractingContent: {
		StateNavigatingStep,
		StateDone,
	},
	StateDone: {
		StateNavigatingPaths,
		StateNavigatingTraining,
		StateUnblockingSteps,
	},
	// Terminal states
	StateFailed:    {},
	StateCancelled: {},
}

// ValidateTransition checks that a session may move from one state to another.
// Every non-terminal state may move to failed or cancelled.
func ValidateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if IsTerminalState(from) {
		return fmt.Errorf("invalid state transition from terminal state %s to %s", from, to)
	}
	if to == StateFailed || to == StateCancelled {
		return nil
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}

// IsTerminalState reports whether no further transitions are possible.
func IsTerminalState(s State) bool {
	return s == StateFailed || s == StateCancelled
}
