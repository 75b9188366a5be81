package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionDocumentStatus(t *testing.T) {
	tests := []struct {
		name  string
		from  DocumentStatus
		to    DocumentStatus
		valid bool
	}{
		{"draft to sent", DocumentStatusDraft, DocumentStatusSent, true},
		{"draft to delivered", DocumentStatusDraft, DocumentStatusDelivered, true},
		{"draft to cancelled", DocumentStatusDraft, DocumentStatusCancelled, true},
		{"sent to delivered", DocumentStatusSent, DocumentStatusDelivered, true},
		{"sent reverted to draft", DocumentStatusSent, DocumentStatusDraft, true},
		{"delivered reverted to draft", DocumentStatusDelivered, DocumentStatusDraft, true},
		{"cancelled reissued as sent", DocumentStatusCancelled, DocumentStatusSent, true},
		{"delivered back to sent", DocumentStatusDelivered, DocumentStatusSent, false},
		{"cancelled back to draft", DocumentStatusCancelled, DocumentStatusDraft, false},
		{"self transition", DocumentStatusDraft, DocumentStatusDraft, false},
		{"unknown status", DocumentStatus("ARCHIVED"), DocumentStatusSent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransitionDocumentStatus(tt.from, tt.to))
		})
	}
}

func TestStockEffectFor(t *testing.T) {
	tests := []struct {
		name   string
		from   DocumentStatus
		to     DocumentStatus
		effect StockEffect
		ok     bool
	}{
		{"draft to sent consumes", DocumentStatusDraft, DocumentStatusSent, StockEffectConsume, true},
		{"draft to delivered consumes", DocumentStatusDraft, DocumentStatusDelivered, StockEffectConsume, true},
		{"draft to cancelled restores", DocumentStatusDraft, DocumentStatusCancelled, StockEffectRestore, true},
		{"sent to delivered is neutral", DocumentStatusSent, DocumentStatusDelivered, StockEffectNone, true},
		{"sent to draft restores", DocumentStatusSent, DocumentStatusDraft, StockEffectRestore, true},
		{"sent to cancelled restores", DocumentStatusSent, DocumentStatusCancelled, StockEffectRestore, true},
		{"delivered to draft restores", DocumentStatusDelivered, DocumentStatusDraft, StockEffectRestore, true},
		{"delivered to cancelled restores", DocumentStatusDelivered, DocumentStatusCancelled, StockEffectRestore, true},
		{"cancelled to sent consumes", DocumentStatusCancelled, DocumentStatusSent, StockEffectConsume, true},
		{"cancelled to delivered consumes", DocumentStatusCancelled, DocumentStatusDelivered, StockEffectConsume, true},
		{"invalid transition has no effect", DocumentStatusDelivered, DocumentStatusSent, StockEffectNone, false},
		{"unknown status has no effect", DocumentStatus("ARCHIVED"), DocumentStatusSent, StockEffectNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			effect, ok := StockEffectFor(tt.from, tt.to)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.effect, effect)
		})
	}
}

func TestStockEffectTableMatchesTransitionTable(t *testing.T) {
	// Every valid transition must have a defined stock effect, and nothing
	// outside the transition table may carry one.
	for from, tos := range ValidDocumentTransitions {
		for _, to := range tos {
			_, ok := StockEffectFor(from, to)
			assert.True(t, ok, "missing stock effect for %s -> %s", from, to)
		}
	}
	for from, effects := range documentStockEffects {
		for to := range effects {
			assert.True(t, CanTransitionDocumentStatus(from, to),
				"stock effect defined for invalid transition %s -> %s", from, to)
		}
	}
}

func TestIsValidDocumentStatus(t *testing.T) {
	assert.True(t, IsValidDocumentStatus(DocumentStatusDraft))
	assert.True(t, IsValidDocumentStatus(DocumentStatusSent))
	assert.True(t, IsValidDocumentStatus(DocumentStatusDelivered))
	assert.True(t, IsValidDocumentStatus(DocumentStatusCancelled))
	assert.False(t, IsValidDocumentStatus(DocumentStatus("ARCHIVED")))
	assert.False(t, IsValidDocumentStatus(DocumentStatus("")))
}

func TestGetNextValidDocumentStatuses(t *testing.T) {
	next := GetNextValidDocumentStatuses(DocumentStatusDelivered)
	assert.ElementsMatch(t, []DocumentStatus{DocumentStatusDraft, DocumentStatusCancelled}, next)

	assert.Empty(t, GetNextValidDocumentStatuses(DocumentStatus("ARCHIVED")))
}

func TestDocumentStatusDisplayName(t *testing.T) {
	assert.Equal(t, "Draft", DocumentStatusDraft.DisplayName())
	assert.Equal(t, "Cancelled", DocumentStatusCancelled.DisplayName())
	assert.Equal(t, "ARCHIVED", DocumentStatus("ARCHIVED").DisplayName())
}
