package delivery

import "time"

// Skip and failure reasons are short stable strings stored on attempt rows
// and campaign failure reasons.
const (
	ReasonObjectNotFound = "object_not_found"
	ReasonInvalidContact = "invalid_contact"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSkip
	OutcomeRetry
	OutcomeFail
)

// Outcome is the explicit result of one delivery attempt. The queue adapter
// translates Retry into a scheduled re-enqueue; everything else acks the
// task. Retry policy lives here, not in the queue framework.
type Outcome struct {
	Kind              OutcomeKind
	Reason            string
	Backoff           time.Duration
	InvalidateContact bool
}

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Skip is a terminal non-fault: nothing recorded, nothing retried.
func Skip(reason string) Outcome {
	return Outcome{Kind: OutcomeSkip, Reason: reason}
}

func Retry(reason string, backoff time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetry, Reason: reason, Backoff: backoff}
}

func Fail(reason string, invalidateContact bool) Outcome {
	return Outcome{Kind: OutcomeFail, Reason: reason, InvalidateContact: invalidateContact}
}
