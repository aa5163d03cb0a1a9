package clashdto

// DomainError carries a machine-readable rejection code across the wire.
type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "battle engine error"
}

// Rejection codes for the spec'd error taxonomy.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidPhase    = "INVALID_PHASE"
	CodeNotParticipant  = "NOT_PARTICIPANT"
	CodeDuplicateAction = "DUPLICATE_ACTION"
	CodeSelfVote        = "SELF_VOTE"
	CodeAlreadyCompleted = "ALREADY_COMPLETED"
	CodePlayerBusy      = "PLAYER_BUSY"
	CodeConflict        = "CONFLICT"
	CodeDeadlinePassed  = "DEADLINE_PASSED"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternal        = "INTERNAL"
)
