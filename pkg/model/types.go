package model

import (
	"fmt"
	"time"
)

// Collection names used by every store backend.
const (
	CollectionUsers              = "users"
	CollectionHistory            = "history"
	CollectionBudgetAlerts       = "budgetAlerts"
	CollectionLists              = "lists"
	CollectionItems              = "items"
	CollectionNotifications      = "notifications"
	CollectionPushTokens         = "pushTokens"
	CollectionCreditTransactions = "creditTransactions"
	CollectionAIUsage            = "aiUsage"
)

// User is the mirrored account document. The budget profile is embedded.
type User struct {
	ID            string    `json:"id" mapstructure:"-"`
	Email         string    `json:"email" mapstructure:"email"`
	DisplayName   string    `json:"displayName" mapstructure:"displayName"`
	MonthlyBudget float64   `json:"monthlyBudget,omitempty" mapstructure:"monthlyBudget"`
	AlertsEnabled bool      `json:"alertsEnabled" mapstructure:"alertsEnabled"`
	AICredits     int64     `json:"aiCredits" mapstructure:"aiCredits"`
	CreatedAt     time.Time `json:"createdAt" mapstructure:"createdAt"`
}

// HasBudget reports whether a monthly budget is configured.
func (u *User) HasBudget() bool {
	return u.MonthlyBudget > 0
}

// Fields returns the document body for the user.
func (u *User) Fields() map[string]any {
	return map[string]any{
		"email":         u.Email,
		"displayName":   u.DisplayName,
		"monthlyBudget": u.MonthlyBudget,
		"alertsEnabled": u.AlertsEnabled,
		"aiCredits":     u.AICredits,
		"createdAt":     u.CreatedAt,
	}
}

// SpendingRecord is one logged shopping trip. Immutable once created.
type SpendingRecord struct {
	ID          string    `json:"id" mapstructure:"-"`
	UserID      string    `json:"userId" mapstructure:"userId"`
	ListID      string    `json:"listId,omitempty" mapstructure:"listId"`
	Date        time.Time `json:"date" mapstructure:"date"`
	TotalAmount float64   `json:"totalAmount" mapstructure:"totalAmount"`
	ItemCount   int       `json:"itemCount,omitempty" mapstructure:"itemCount"`
}

func (r *SpendingRecord) Fields() map[string]any {
	return map[string]any{
		"userId":      r.UserID,
		"listId":      r.ListID,
		"date":        r.Date,
		"totalAmount": r.TotalAmount,
		"itemCount":   r.ItemCount,
	}
}

// AlertRecord marks that the monthly budget alert was sent.
type AlertRecord struct {
	Key             string    `json:"key" mapstructure:"-"`
	UserID          string    `json:"userId" mapstructure:"userId"`
	Year            int       `json:"year" mapstructure:"year"`
	Month           int       `json:"month" mapstructure:"month"`
	MonthlyBudget   float64   `json:"monthlyBudget" mapstructure:"monthlyBudget"`
	AmountSpent     float64   `json:"amountSpent" mapstructure:"amountSpent"`
	PercentageSpent float64   `json:"percentageSpent" mapstructure:"percentageSpent"`
	SentAt          time.Time `json:"sentAt" mapstructure:"sentAt"`
}

func (a *AlertRecord) Fields() map[string]any {
	return map[string]any{
		"userId":          a.UserID,
		"year":            a.Year,
		"month":           a.Month,
		"monthlyBudget":   a.MonthlyBudget,
		"amountSpent":     a.AmountSpent,
		"percentageSpent": a.PercentageSpent,
		"sentAt":          a.SentAt,
	}
}

// AlertKey derives the deduplication key for a user's alert in the month containing t.
func AlertKey(userID string, t time.Time) string {
	return fmt.Sprintf("%s_%d_%02d", userID, t.Year(), int(t.Month()))
}

// GroceryList is a shared shopping list.
type GroceryList struct {
	ID        string    `json:"id" mapstructure:"-"`
	Name      string    `json:"name" mapstructure:"name"`
	OwnerID   string    `json:"ownerId" mapstructure:"ownerId"`
	Members   []string  `json:"members" mapstructure:"members"`
	CreatedAt time.Time `json:"createdAt" mapstructure:"createdAt"`
}

func (l *GroceryList) Fields() map[string]any {
	members := make([]any, len(l.Members))
	for i, m := range l.Members {
		members[i] = m
	}
	return map[string]any{
		"name":      l.Name,
		"ownerId":   l.OwnerID,
		"members":   members,
		"createdAt": l.CreatedAt,
	}
}

// HasMember reports whether uid belongs to the list.
func (l *GroceryList) HasMember(uid string) bool {
	if l.OwnerID == uid {
		return true
	}
	for _, m := range l.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// GroceryItem is an entry on a list.
type GroceryItem struct {
	ID        string    `json:"id" mapstructure:"-"`
	ListID    string    `json:"listId" mapstructure:"listId"`
	Name      string    `json:"name" mapstructure:"name"`
	AddedBy   string    `json:"addedBy" mapstructure:"addedBy"`
	Price     float64   `json:"price,omitempty" mapstructure:"price"`
	CreatedAt time.Time `json:"createdAt" mapstructure:"createdAt"`
}

func (i *GroceryItem) Fields() map[string]any {
	return map[string]any{
		"listId":    i.ListID,
		"name":      i.Name,
		"addedBy":   i.AddedBy,
		"price":     i.Price,
		"createdAt": i.CreatedAt,
	}
}

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationItemAdded  NotificationType = "item_added"
	NotificationListInvite NotificationType = "list_invite"
	NotificationBudget     NotificationType = "budget_alert"
)

// Notification is an in-app notification record.
type Notification struct {
	ID        string            `json:"id" mapstructure:"-"`
	UserID    string            `json:"userId" mapstructure:"userId"`
	Type      NotificationType  `json:"type" mapstructure:"type"`
	Title     string            `json:"title" mapstructure:"title"`
	Body      string            `json:"body" mapstructure:"body"`
	Data      map[string]string `json:"data,omitempty" mapstructure:"data"`
	Read      bool              `json:"read" mapstructure:"read"`
	CreatedAt time.Time         `json:"createdAt" mapstructure:"createdAt"`
}

func (n *Notification) Fields() map[string]any {
	data := make(map[string]any, len(n.Data))
	for k, v := range n.Data {
		data[k] = v
	}
	return map[string]any{
		"userId":    n.UserID,
		"type":      string(n.Type),
		"title":     n.Title,
		"body":      n.Body,
		"data":      data,
		"read":      n.Read,
		"createdAt": n.CreatedAt,
	}
}

// PushToken is a registered device token. The document ID is the token itself.
type PushToken struct {
	Token     string    `json:"token" mapstructure:"-"`
	UserID    string    `json:"userId" mapstructure:"userId"`
	Platform  string    `json:"platform,omitempty" mapstructure:"platform"`
	UpdatedAt time.Time `json:"updatedAt" mapstructure:"updatedAt"`
}

func (p *PushToken) Fields() map[string]any {
	return map[string]any{
		"userId":    p.UserID,
		"platform":  p.Platform,
		"updatedAt": p.UpdatedAt,
	}
}

// CreditTransaction is an audit entry for an AI credit change.
type CreditTransaction struct {
	ID        string    `json:"id" mapstructure:"-"`
	UserID    string    `json:"userId" mapstructure:"userId"`
	Amount    int64     `json:"amount" mapstructure:"amount"`
	Reason    string    `json:"reason" mapstructure:"reason"`
	CreatedAt time.Time `json:"createdAt" mapstructure:"createdAt"`
}

func (c *CreditTransaction) Fields() map[string]any {
	return map[string]any{
		"userId":    c.UserID,
		"amount":    c.Amount,
		"reason":    c.Reason,
		"createdAt": c.CreatedAt,
	}
}

// AIUsage records a single AI vision call with cost data.
type AIUsage struct {
	ID           string    `json:"id" mapstructure:"-"`
	UserID       string    `json:"userId" mapstructure:"userId"`
	Provider     string    `json:"provider" mapstructure:"provider"`
	Model        string    `json:"model" mapstructure:"model"`
	InputTokens  int64     `json:"inputTokens" mapstructure:"inputTokens"`
	OutputTokens int64     `json:"outputTokens" mapstructure:"outputTokens"`
	CostUSD      float64   `json:"costUsd" mapstructure:"costUsd"`
	CreatedAt    time.Time `json:"createdAt" mapstructure:"createdAt"`
}

func (u *AIUsage) Fields() map[string]any {
	return map[string]any{
		"userId":       u.UserID,
		"provider":     u.Provider,
		"model":        u.Model,
		"inputTokens":  u.InputTokens,
		"outputTokens": u.OutputTokens,
		"costUsd":      u.CostUSD,
		"createdAt":    u.CreatedAt,
	}
}

// Identity is what the auth provider knows about an account.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// SpendingSummary aggregates spending for a period.
type SpendingSummary struct {
	UserID      string    `json:"userId"`
	Period      Period    `json:"period"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TotalSpent  float64   `json:"totalSpent"`
	RecordCount int64     `json:"recordCount"`
	Budget      float64   `json:"monthlyBudget,omitempty"`
}
