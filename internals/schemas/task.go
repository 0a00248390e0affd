package schemas

import (
	"regexp"

	z "github.com/Oudwins/zog"

	"github.com/hatchery-io/hatchery/internals/task"
)

type StepCreateRequest struct {
	Name         string         `json:"name" zog:"name"`
	AgentType    string         `json:"agent_type" zog:"agent_type"`
	Inputs       map[string]any `json:"inputs" zog:"inputs"`
	Dependencies []string       `json:"dependencies" zog:"dependencies"`
}

type TaskCreateRequest struct {
	UserID         string              `json:"user_id" zog:"user_id"`
	OrganizationID string              `json:"organization_id" zog:"organization_id"`
	Goal           string              `json:"goal" zog:"goal"`
	Steps          []StepCreateRequest `json:"steps" zog:"steps"`
	ParentTaskID   string              `json:"parent_task_id" zog:"parent_task_id"`
	TreeID         string              `json:"tree_id" zog:"tree_id"`
	Metadata       map[string]any      `json:"metadata" zog:"metadata"`
}

var identRegex = regexp.MustCompile(`^[A-Za-z0-9._\-]+$`)

var TaskCreateSchema = z.Struct(z.Shape{
	"UserID":         z.String().Required().Trim().Match(identRegex),
	"OrganizationID": z.String().Optional().Trim(),
	"Goal":           z.String().Required().Trim(),
	"Steps": z.Slice(z.Struct(z.Shape{
		"Name":      z.String().Required().Trim(),
		"AgentType": z.String().Required().Trim(),
	})).Optional(),
	"ParentTaskID": z.String().Optional().Trim(),
	"TreeID":       z.String().Optional().Trim(),
})

type TaskResponse struct {
	Task *task.Task `json:"task"`
}

type TaskListResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

type TaskHistoryResponse struct {
	Tasks []*task.Task `json:"tasks"`
}
