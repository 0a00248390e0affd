package schemas

import (
	z "github.com/Oudwins/zog"

	"github.com/hatchery-io/hatchery/internals/triggers"
)

type TriggerRegisterRequest struct {
	TaskID         string `json:"task_id" zog:"task_id"`
	OrganizationID string `json:"organization_id" zog:"organization_id"`
	UserID         string `json:"user_id" zog:"user_id"`
	EventPattern   string `json:"event_pattern" zog:"event_pattern"`
	SourceFilter   string `json:"source_filter" zog:"source_filter"`
	Enabled        *bool  `json:"enabled" zog:"enabled"`
}

var TriggerRegisterSchema = z.Struct(z.Shape{
	"TaskID":         z.String().Required().Trim().Match(identRegex),
	"OrganizationID": z.String().Required().Trim(),
	"UserID":         z.String().Optional().Trim(),
	"EventPattern":   z.String().Required().Trim(),
	"SourceFilter":   z.String().Optional().Trim(),
})

type TriggerUpdateRequest struct {
	EventPattern *string `json:"event_pattern" zog:"event_pattern"`
	SourceFilter *string `json:"source_filter" zog:"source_filter"`
	Enabled      *bool   `json:"enabled" zog:"enabled"`
}

var TriggerUpdateSchema = z.Struct(z.Shape{
	"EventPattern": z.Ptr(z.String().Trim()),
	"SourceFilter": z.Ptr(z.String().Trim()),
	"Enabled":      z.Ptr(z.Bool()),
})

type TriggerResponse struct {
	Registered bool             `json:"registered"`
	Config     *triggers.Config `json:"config,omitempty"`
}

type TriggerDeleteResponse struct {
	Removed bool `json:"removed"`
}

type TriggerListResponse struct {
	Triggers []triggers.Config `json:"triggers"`
}

type TriggerHistoryResponse struct {
	Executions []triggers.Execution `json:"executions"`
}
