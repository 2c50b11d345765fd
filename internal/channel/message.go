// Package channel implements the append-only, sequence-numbered record stream
// carrying logs and structured reports from a remote job to the orchestrator.
package channel

import (
	"fmt"
	"time"
)

// Kind discriminates the message variants carried on the channel.
type Kind string

// Message kinds.
const (
	KindLog             Kind = "log"
	KindMaterialization Kind = "materialization"
	KindAssetCheck      Kind = "asset_check"
	KindCustom          Kind = "custom"
)

// Message is one record on the channel. The concrete types form a closed set;
// a switch over them is exhaustive.
type Message interface {
	MessageKind() Kind
}

// LogRecord carries one line of remote log output. Log records are forwarded
// to the bound output stream as they are decoded, never buffered as results.
type LogRecord struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// MessageKind implements Message.
func (LogRecord) MessageKind() Kind { return KindLog }

// MetadataValue is a typed metadata entry attached to a report.
type MetadataValue struct {
	Type  string `json:"type"` // "text", "int", "float", "bool", "json"
	Value any    `json:"value"`
}

// Typed metadata constructors.
func MetadataText(s string) MetadataValue   { return MetadataValue{Type: "text", Value: s} }
func MetadataInt(i int64) MetadataValue     { return MetadataValue{Type: "int", Value: i} }
func MetadataFloat(f float64) MetadataValue { return MetadataValue{Type: "float", Value: f} }
func MetadataBool(b bool) MetadataValue     { return MetadataValue{Type: "bool", Value: b} }
func MetadataJSON(v any) MetadataValue      { return MetadataValue{Type: "json", Value: v} }

// MaterializationReport asserts that a unit of work produced a versioned
// artifact.
type MaterializationReport struct {
	EntityKey   string                   `json:"entityKey"`
	Metadata    map[string]MetadataValue `json:"metadata,omitempty"`
	DataVersion string                   `json:"dataVersion,omitempty"`
	Partition   string                   `json:"partition,omitempty"`
}

// MessageKind implements Message.
func (MaterializationReport) MessageKind() Kind { return KindMaterialization }

// AssetCheckReport carries the outcome of a quality check against an entity.
type AssetCheckReport struct {
	EntityKey string                   `json:"entityKey"`
	CheckName string                   `json:"checkName"`
	Passed    bool                     `json:"passed"`
	Severity  string                   `json:"severity,omitempty"`
	Metadata  map[string]MetadataValue `json:"metadata,omitempty"`
}

// MessageKind implements Message.
func (AssetCheckReport) MessageKind() Kind { return KindAssetCheck }

// CustomReport carries application-defined structured data.
type CustomReport struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

// MessageKind implements Message.
func (CustomReport) MessageKind() Kind { return KindCustom }

// Envelope is the framed wire record: a writer-assigned sequence number, a
// kind tag, a timestamp, and exactly one populated variant field matching the
// kind. The pointer-per-variant shape keeps the record decodable by any codec
// without format-specific raw-message types.
type Envelope struct {
	Seq  uint64    `json:"seq"`
	Kind Kind      `json:"kind"`
	Time time.Time `json:"ts"`

	Log             *LogRecord             `json:"log,omitempty"`
	Materialization *MaterializationReport `json:"materialization,omitempty"`
	AssetCheck      *AssetCheckReport      `json:"assetCheck,omitempty"`
	Custom          *CustomReport          `json:"custom,omitempty"`
}

// wrap builds an envelope for msg. Seq and Time are set by the writer.
func wrap(msg Message) (*Envelope, error) {
	env := &Envelope{Kind: msg.MessageKind()}
	switch m := msg.(type) {
	case LogRecord:
		env.Log = &m
	case *LogRecord:
		env.Log = m
	case MaterializationReport:
		env.Materialization = &m
	case *MaterializationReport:
		env.Materialization = m
	case AssetCheckReport:
		env.AssetCheck = &m
	case *AssetCheckReport:
		env.AssetCheck = m
	case CustomReport:
		env.Custom = &m
	case *CustomReport:
		env.Custom = m
	default:
		return nil, fmt.Errorf("unknown message type %T", msg)
	}
	return env, nil
}

// Message returns the populated variant or an error when the kind tag and
// variant fields disagree (a malformed record).
func (e *Envelope) Message() (Message, error) {
	switch e.Kind {
	case KindLog:
		if e.Log != nil {
			return *e.Log, nil
		}
	case KindMaterialization:
		if e.Materialization != nil {
			return *e.Materialization, nil
		}
	case KindAssetCheck:
		if e.AssetCheck != nil {
			return *e.AssetCheck, nil
		}
	case KindCustom:
		if e.Custom != nil {
			return *e.Custom, nil
		}
	default:
		return nil, fmt.Errorf("unknown message kind %q", e.Kind)
	}
	return nil, fmt.Errorf("record %d: kind %q has no payload", e.Seq, e.Kind)
}
