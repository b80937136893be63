// Package models holds the SOP read model: the ordered task/step/hazard tree
// a work session traverses. Authoring and AI structuring of procedures live
// in a separate system; this service only reads the structure.
package models

import (
	"fmt"
	"strings"
	"time"

	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
)

// Hazard is a known risk attached to a step.
type Hazard struct {
	ID          id.HazardID `json:"id"`
	Description string      `json:"description"`
	Severity    string      `json:"severity"`
	Mitigation  string      `json:"mitigation,omitempty"`
}

// Step is a single verifiable action within a task.
type Step struct {
	ID             id.StepID `json:"id"`
	Description    string    `json:"description"`
	OrderIndex     int       `json:"order_index"`
	ExpectedAction string    `json:"expected_action,omitempty"`
	ExpectedResult string    `json:"expected_result,omitempty"`
	Hazards        []Hazard  `json:"hazards,omitempty"`
}

// Task groups ordered steps.
type Task struct {
	ID          id.TaskID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OrderIndex  int       `json:"order_index"`
	Steps       []Step    `json:"steps"`
}

// SOP is the procedure aggregate: an ordered hierarchy of tasks, steps, and
// hazards. Tasks and steps are kept sorted by OrderIndex by the stores;
// navigation below relies on that ordering.
type SOP struct {
	ID        id.SOPID  `json:"id"`
	Title     string    `json:"title"`
	CreatedBy id.UserID `json:"created_by"`
	Tasks     []Task    `json:"tasks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate reports structural problems that make the SOP unusable for a
// work session.
func (s *SOP) Validate() []string {
	var errs []string
	if strings.TrimSpace(s.Title) == "" {
		errs = append(errs, "SOP title is required")
	}
	if len(s.Tasks) == 0 {
		errs = append(errs, "SOP must have at least one task")
	}
	for _, task := range s.Tasks {
		if len(task.Steps) == 0 {
			errs = append(errs, fmt.Sprintf("task %q has no steps", task.Title))
		}
	}
	return errs
}

// FirstStepID returns the first step of the first task.
func (s *SOP) FirstStepID() (id.StepID, bool) {
	for _, task := range s.Tasks {
		if len(task.Steps) > 0 {
			return task.Steps[0].ID, true
		}
	}
	return id.StepID{}, false
}

// TotalSteps counts steps across all tasks.
func (s *SOP) TotalSteps() int {
	n := 0
	for _, task := range s.Tasks {
		n += len(task.Steps)
	}
	return n
}

// FindStep locates a step and returns its 1-based task and step numbers for
// display and prompting.
func (s *SOP) FindStep(stepID id.StepID) (taskNumber, stepNumber int, step *Step, err error) {
	for ti := range s.Tasks {
		for si := range s.Tasks[ti].Steps {
			if s.Tasks[ti].Steps[si].ID == stepID {
				return ti + 1, si + 1, &s.Tasks[ti].Steps[si], nil
			}
		}
	}
	return 0, 0, nil, dErrors.Newf(dErrors.CodeNotFound, "step %s not found in SOP", stepID)
}

// NextStepAfter returns the step following the given one in traversal order,
// crossing task boundaries. ok is false when the given step is the last.
func (s *SOP) NextStepAfter(stepID id.StepID) (id.StepID, bool) {
	found := false
	for _, task := range s.Tasks {
		for _, step := range task.Steps {
			if found {
				return step.ID, true
			}
			if step.ID == stepID {
				found = true
			}
		}
	}
	return id.StepID{}, false
}

// FormatStructure renders the complete procedure as text for use as
// verification context. The verifier needs the whole workflow, not just the
// current step, to detect out-of-sequence work.
func (s *SOP) FormatStructure() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SOP Title: %s\n", s.Title)

	for ti, task := range s.Tasks {
		fmt.Fprintf(&b, "\nTask %d: %s\n", ti+1, task.Title)
		if task.Description != "" {
			fmt.Fprintf(&b, "  Description: %s\n", task.Description)
		}
		for si, step := range task.Steps {
			fmt.Fprintf(&b, "  Step %d.%d: %s\n", ti+1, si+1, step.Description)
			if step.ExpectedAction != "" {
				fmt.Fprintf(&b, "    Action: %s\n", step.ExpectedAction)
			}
			if step.ExpectedResult != "" {
				fmt.Fprintf(&b, "    Result: %s\n", step.ExpectedResult)
			}
			if len(step.Hazards) > 0 {
				b.WriteString("    Hazards:\n")
				for _, h := range step.Hazards {
					fmt.Fprintf(&b, "      - [%s] %s\n", h.Severity, h.Description)
				}
			}
		}
	}
	return b.String()
}

// HazardSummary renders a step's hazards as a single line for prompting.
func (st *Step) HazardSummary() string {
	if len(st.Hazards) == 0 {
		return "None specified"
	}
	parts := make([]string, 0, len(st.Hazards))
	for _, h := range st.Hazards {
		parts = append(parts, fmt.Sprintf("%s: %s", h.Severity, h.Description))
	}
	return strings.Join(parts, ", ")
}
