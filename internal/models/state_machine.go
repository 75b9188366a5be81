package models

// StockEffect is what a status transition does to a document's stock.
type StockEffect string

const (
	// StockEffectNone leaves stock untouched.
	StockEffectNone StockEffect = "NONE"
	// StockEffectConsume consumes all item quantities, but only when the
	// document does not already hold consumed stock.
	StockEffectConsume StockEffect = "CONSUME"
	// StockEffectRestore returns all item quantities, but only when the
	// document currently holds consumed stock.
	StockEffectRestore StockEffect = "RESTORE"
)

// ValidDocumentTransitions defines valid status transitions for
// stock-consuming documents.
// Flow: DRAFT → {SENT, DELIVERED} → {DRAFT (reverted), CANCELLED}
var ValidDocumentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusDraft:     {DocumentStatusSent, DocumentStatusDelivered, DocumentStatusCancelled},
	DocumentStatusSent:      {DocumentStatusDelivered, DocumentStatusDraft, DocumentStatusCancelled},
	DocumentStatusDelivered: {DocumentStatusDraft, DocumentStatusCancelled},
	DocumentStatusCancelled: {DocumentStatusSent, DocumentStatusDelivered},
}

// documentStockEffects maps each transition to its stock effect. This single
// table replaces consume/restore branches otherwise repeated across the
// create/update/status-change/delete paths.
var documentStockEffects = map[DocumentStatus]map[DocumentStatus]StockEffect{
	DocumentStatusDraft: {
		DocumentStatusSent:      StockEffectConsume,
		DocumentStatusDelivered: StockEffectConsume,
		DocumentStatusCancelled: StockEffectRestore,
	},
	DocumentStatusSent: {
		DocumentStatusDelivered: StockEffectNone,
		DocumentStatusDraft:     StockEffectRestore,
		DocumentStatusCancelled: StockEffectRestore,
	},
	DocumentStatusDelivered: {
		DocumentStatusDraft:     StockEffectRestore,
		DocumentStatusCancelled: StockEffectRestore,
	},
	DocumentStatusCancelled: {
		DocumentStatusSent:      StockEffectConsume,
		DocumentStatusDelivered: StockEffectConsume,
	},
}

// CanTransitionDocumentStatus checks if a transition between document
// statuses is valid.
func CanTransitionDocumentStatus(from, to DocumentStatus) bool {
	validTransitions, exists := ValidDocumentTransitions[from]
	if !exists {
		return false
	}
	for _, validTo := range validTransitions {
		if validTo == to {
			return true
		}
	}
	return false
}

// StockEffectFor returns the stock effect of a transition, or false when the
// transition itself is invalid.
func StockEffectFor(from, to DocumentStatus) (StockEffect, bool) {
	effects, ok := documentStockEffects[from]
	if !ok {
		return StockEffectNone, false
	}
	effect, ok := effects[to]
	if !ok {
		return StockEffectNone, false
	}
	return effect, true
}

// IsValidDocumentStatus reports whether s is a known status value.
func IsValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusSent, DocumentStatusDelivered, DocumentStatusCancelled:
		return true
	}
	return false
}

// GetNextValidDocumentStatuses returns the list of valid next statuses.
func GetNextValidDocumentStatuses(current DocumentStatus) []DocumentStatus {
	return ValidDocumentTransitions[current]
}

// DisplayName returns a human-readable name for the document status.
func (s DocumentStatus) DisplayName() string {
	switch s {
	case DocumentStatusDraft:
		return "Draft"
	case DocumentStatusSent:
		return "Sent"
	case DocumentStatusDelivered:
		return "Delivered"
	case DocumentStatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}
