// Package forward pushes decoded structured reports to an orchestrator event
// log over HTTP as CloudEvents. Forwarding is additive and best effort; the
// session's pull API stays the authoritative way to consume results.
package forward

import (
	"fmt"
	"time"

	"jobpipe/internal/channel"
)

// Event types for forwarded reports.
const (
	EventTypeMaterialization = "jobpipe.report.materialization"
	EventTypeAssetCheck      = "jobpipe.report.asset_check"
	EventTypeCustom          = "jobpipe.report.custom"
)

// CloudEvent represents a CloudEvents 1.0 specification event.
type CloudEvent struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Subject         string         `json:"subject"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time"`
	DataContentType string         `json:"datacontenttype"`
	Data            map[string]any `json:"data"`
}

// eventType maps a message kind to its CloudEvent type. Log records are not
// forwarded; they already stream to the bound output.
func eventType(kind channel.Kind) (string, bool) {
	switch kind {
	case channel.KindMaterialization:
		return EventTypeMaterialization, true
	case channel.KindAssetCheck:
		return EventTypeAssetCheck, true
	case channel.KindCustom:
		return EventTypeCustom, true
	default:
		return "", false
	}
}

// NewReportEvent builds a CloudEvent for one decoded report. The run ID is
// the subject so consumers can group events per launch.
func NewReportEvent(source, runID string, msg channel.Message) (*CloudEvent, error) {
	typ, ok := eventType(msg.MessageKind())
	if !ok {
		return nil, fmt.Errorf("message kind %q is not forwardable", msg.MessageKind())
	}
	return &CloudEvent{
		SpecVersion:     "1.0",
		Type:            typ,
		Source:          source,
		Subject:         runID,
		ID:              fmt.Sprintf("%s-%d", runID, time.Now().UnixNano()),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data: map[string]any{
			"runId":  runID,
			"kind":   string(msg.MessageKind()),
			"report": msg,
		},
	}, nil
}
