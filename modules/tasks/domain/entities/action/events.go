package action

// ExecutedEvent is published after an action's transaction commits. The
// notification collaborator subscribes to it; delivery failures never reach
// the committed transaction.
type ExecutedEvent struct {
	Action *Action
	// RowsUpserted and RowsDeleted describe the applied cascade.
	RowsUpserted int
	RowsDeleted  int
}

func NewExecutedEvent(act *Action, upserted, deleted int) *ExecutedEvent {
	return &ExecutedEvent{Action: act, RowsUpserted: upserted, RowsDeleted: deleted}
}
