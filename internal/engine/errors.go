package engine

import (
	"fmt"

	"github.com/xiaot623/settle/internal/domain"
)

// Stage names the pipeline step at which a run stopped.
type Stage string

const (
	StagePlan            Stage = "plan"
	StageAgents          Stage = "agents"
	StageFinalEvaluation Stage = "final_evaluation"
)

// RunError is returned when a run cannot finish. Run holds everything produced
// before the failure.
type RunError struct {
	Stage Stage
	Run   *domain.RunContext
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed at %s step: %v", e.Run.ID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
