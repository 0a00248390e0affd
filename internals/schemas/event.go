package schemas

import (
	z "github.com/Oudwins/zog"
)

type EventIngestRequest struct {
	Source         string         `json:"source" zog:"source"`
	EventType      string         `json:"event_type" zog:"event_type"`
	Data           map[string]any `json:"data" zog:"data"`
	Metadata       map[string]any `json:"metadata" zog:"metadata"`
	OrganizationID string         `json:"organization_id" zog:"organization_id"`
}

var EventIngestSchema = z.Struct(z.Shape{
	"Source":         z.String().Required().Trim(),
	"EventType":      z.String().Required().Trim(),
	"OrganizationID": z.String().Optional().Trim(),
})

type EventIngestResponse struct {
	EventID    string `json:"event_id"`
	TasksFired int    `json:"tasks_fired"`
}
