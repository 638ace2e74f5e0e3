package queue

import (
	"encoding/json"
	"fmt"
)

// Queue-specific payload shapes. Enqueue rejects payloads that fail these
// checks before any queue mutation, so a malformed request never occupies a
// slot in the lane.

type researchPayload struct {
	CompanyID string `json:"company_id"`
	Depth     string `json:"depth,omitempty"`
}

type enrichmentPayload struct {
	ContactID string `json:"contact_id"`
}

type reportPayload struct {
	ReportType string `json:"report_type"`
	TargetID   string `json:"target_id"`
}

type signalPayload struct {
	SignalID string `json:"signal_id"`
}

// validatePayload checks raw against the named lane's payload shape.
// Returns an error wrapping ErrInvalidPayload on any violation.
func validatePayload(queueName string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	switch queueName {
	case QueueResearch:
		var p researchPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.CompanyID == "" {
			return fmt.Errorf("%w: research payload requires company_id", ErrInvalidPayload)
		}
	case QueueEnrichment:
		var p enrichmentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.ContactID == "" {
			return fmt.Errorf("%w: enrichment payload requires contact_id", ErrInvalidPayload)
		}
	case QueueReports:
		var p reportPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.ReportType == "" {
			return fmt.Errorf("%w: report payload requires report_type", ErrInvalidPayload)
		}
		if p.TargetID == "" {
			return fmt.Errorf("%w: report payload requires target_id", ErrInvalidPayload)
		}
	case QueueSignals:
		var p signalPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.SignalID == "" {
			return fmt.Errorf("%w: signal payload requires signal_id", ErrInvalidPayload)
		}
	default:
		return ErrUnknownQueue
	}
	return nil
}
