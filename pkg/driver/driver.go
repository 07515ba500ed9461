package driver

import (
	"github.com/zkfleet/zkfleet/pkg/types"
)

// TaskState is a resource-manager report about one launched task.
type TaskState string

const (
	TaskStaging  TaskState = "staging"
	TaskRunning  TaskState = "running"
	TaskFinished TaskState = "finished"
	TaskFailed   TaskState = "failed"
	TaskKilled   TaskState = "killed"
	TaskLost     TaskState = "lost"
	TaskError    TaskState = "error"
)

// Terminal reports whether the task is gone for good and its resources are
// released.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskLost, TaskError:
		return true
	}
	return false
}

// StatusUpdate is a resource-manager callback about a task's state.
type StatusUpdate struct {
	TaskID  string    `json:"taskId"`
	State   TaskState `json:"state"`
	Message string    `json:"message,omitempty"`
}

// TaskInfo is the task descriptor handed to the resource manager: it
// consumes exactly the listed cpu/mem/port from the offer it references.
type TaskInfo struct {
	ID       string           `json:"id"`
	OfferID  string           `json:"offerId"`
	Hostname string           `json:"hostname"`
	CPUs     float64          `json:"cpus"`
	Mem      float64          `json:"mem"`
	Port     int              `json:"port"`
	Config   types.TaskConfig `json:"config"`
}

// Driver is the slice of the resource-manager API the scheduler consumes.
// Registration, offer subscription and status-update plumbing live outside
// the engine; offers and updates arrive through the admin API's callback
// endpoints.
type Driver interface {
	// LaunchTask starts the described task against its offer.
	LaunchTask(task *TaskInfo) error

	// KillTask asks the resource manager to terminate a task. The kill is
	// confirmed later through a terminal status update.
	KillTask(taskID string) error
}
