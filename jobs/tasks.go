package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity is the task type for the periodic trial balance sweep.
	TaskLedgerIntegrity = "ledger:integrity"
)

// LedgerIntegrityPayload scopes an integrity sweep. An empty UserID sweeps
// every owner with accounts.
type LedgerIntegrityPayload struct {
	UserID string `json:"user_id,omitempty"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity sweep.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}
