package models

import (
	"time"
)

// Conversation lifecycle

// ConversationStatus represents the lifecycle state of a conversation
type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusPending  ConversationStatus = "pending"
	StatusResolved ConversationStatus = "resolved"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderStaff    Sender = "staff"
	SenderAI       Sender = "ai"
)

// Conversation represents a customer thread handled by dealership staff
type Conversation struct {
	ID              string             `json:"id" db:"id"`
	CustomerID      string             `json:"customer_id" db:"customer_id"`
	AssignedStaffID *string            `json:"assigned_staff_id,omitempty" db:"assigned_staff_id"`
	Status          ConversationStatus `json:"status" db:"status"`
	Priority        string             `json:"priority" db:"priority"`
	Source          string             `json:"source,omitempty" db:"source"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" db:"updated_at"`
}

// Message belongs to exactly one conversation. Ordering is append-only and
// timestamp-monotonic per conversation.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Sender         Sender    `json:"sender" db:"sender"`
	Body           string    `json:"body" db:"body"`
	AssistanceID   *string   `json:"assistance_id,omitempty" db:"assistance_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// StatusChange is the audit record written for every conversation transition
type StatusChange struct {
	ConversationID string             `json:"conversation_id" db:"conversation_id"`
	From           ConversationStatus `json:"from" db:"from_status"`
	To             ConversationStatus `json:"to" db:"to_status"`
	Actor          string             `json:"actor" db:"actor"`
	OccurredAt     time.Time          `json:"occurred_at" db:"occurred_at"`
}

// AI assistance

// Disposition is the staff decision on an AI-generated suggestion
type Disposition string

const (
	DispositionPending  Disposition = "pending"
	DispositionAccepted Disposition = "accepted"
	DispositionRejected Disposition = "rejected"
	DispositionEdited   Disposition = "edited"
)

// AIAssistance records a suggestion generated for a message. It is mutated
// only by staff disposition actions and never deleted (audit trail).
type AIAssistance struct {
	ID                 string      `json:"id" db:"id"`
	MessageID          string      `json:"message_id" db:"message_id"`
	SuggestedText      string      `json:"suggested_text" db:"suggested_text"`
	EditedText         *string     `json:"edited_text,omitempty" db:"edited_text"`
	Confidence         *float64    `json:"confidence,omitempty" db:"confidence"`
	NeedsClarification bool        `json:"needs_clarification" db:"needs_clarification"`
	Disposition        Disposition `json:"disposition" db:"disposition"`
	Rating             *int        `json:"rating,omitempty" db:"rating"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

// Customer is the dealership-side view of a person, the source entity for
// CRM contact sync
type Customer struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name,omitempty" db:"first_name"`
	LastName  string    `json:"last_name,omitempty" db:"last_name"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Source    string    `json:"source,omitempty" db:"source"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// External sync audit

// SyncOutcome classifies the terminal result of one sync attempt
type SyncOutcome string

const (
	SyncSuccess SyncOutcome = "success"
	SyncFailed  SyncOutcome = "failed"
	SyncSkipped SyncOutcome = "skipped"
)

// SyncAttempt is an append-only journal entry for one outbound sync. A retry
// appends a new attempt; a terminal attempt is never mutated.
type SyncAttempt struct {
	ID             int64       `json:"id" db:"id"`
	System         string      `json:"system" db:"system"`
	EntityID       string      `json:"entity_id" db:"entity_id"`
	Kind           string      `json:"kind" db:"kind"`
	IdempotencyKey string      `json:"idempotency_key" db:"idempotency_key"`
	Outcome        SyncOutcome `json:"outcome" db:"outcome"`
	Attempts       int         `json:"attempts" db:"attempts"`
	LastError      string      `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// Billing

// SubscriptionStatus mirrors the billing provider's lifecycle
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

// SubscriptionState is the projection derived from billing webhook events.
// Mutated only by the billing webhook processor via a conditional write:
// an event applies only if it is newer than LastEventAt, with event-id
// lexical order breaking timestamp ties.
type SubscriptionState struct {
	SubscriptionID string             `json:"subscription_id" db:"subscription_id"`
	CustomerID     string             `json:"customer_id" db:"customer_id"`
	Status         SubscriptionStatus `json:"status" db:"status"`
	Tier           string             `json:"tier" db:"tier"`
	Renewal        bool               `json:"renewal" db:"renewal"`
	LastEventID    string             `json:"last_event_id" db:"last_event_id"`
	LastEventAt    time.Time          `json:"last_event_at" db:"last_event_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}
