// Package domain defines the persistence models and value types shared by the
// inbound message pipeline: tenants and their catalog, conversations with a
// bounded history and a metadata bag, and confirmed order records. The GORM
// models are mapped to tables; the value types are embedded as JSON columns.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Provider identifies a messaging provider family.
type Provider string

const (
	// ProviderGraph is the Graph-style (WhatsApp Cloud API) family.
	ProviderGraph Provider = "whatsapp"
	// ProviderGateway is the Gateway-style (LAM) family.
	ProviderGateway Provider = "lam"
)

// Tenant is a business running an ordering agent. It is read-only from the
// pipeline's point of view; rows are created by administration tooling or the
// seed command.
//
// Channel fields override the global configuration when non-empty.
type Tenant struct {
	ID          string `json:"id"          gorm:"type:varchar(64);primaryKey"`
	Name        string `json:"name"        gorm:"type:varchar(255);not null"`
	Description string `json:"description" gorm:"type:text"`
	Cuisine     string `json:"cuisine"     gorm:"type:varchar(128)"`

	// Chat configuration
	WelcomeMessage      string `json:"welcome_message"      gorm:"type:text"`
	BusinessHours       string `json:"business_hours"       gorm:"type:text"`
	SpecialInstructions string `json:"special_instructions" gorm:"type:text"`
	DeliveryInfo        string `json:"delivery_info"        gorm:"type:text"`
	OrderingEnabled     bool   `json:"ordering_enabled"     gorm:"not null"`
	KnowledgeBase       string `json:"knowledge_base"       gorm:"type:text"`

	// Channel identity and per-tenant credential overrides
	Provider        Provider `json:"provider"          gorm:"type:varchar(16)"`
	PhoneNumberID   string   `json:"phone_number_id"   gorm:"type:varchar(64);index"`
	VerifyToken     string   `json:"-"                 gorm:"type:varchar(255);index"`
	AppSecret       string   `json:"-"                 gorm:"type:varchar(255)"`
	AccessToken     string   `json:"-"                 gorm:"type:text"`
	GatewayAPIKey   string   `json:"-"                 gorm:"type:varchar(255);index"`
	GatewaySenderID string   `json:"gateway_sender_id" gorm:"type:varchar(64)"`

	IsActive  bool           `json:"is_active"  gorm:"not null"`
	Catalog   []CatalogItem  `json:"catalog"    gorm:"foreignKey:TenantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Tenant.
func (Tenant) TableName() string { return "tenants" }

// CatalogItem is a sellable item owned by a tenant. Prices are integer minor
// currency units (FCFA has no subunit, so the value is the displayed amount).
type CatalogItem struct {
	ID          string `json:"id"           gorm:"type:varchar(64);primaryKey"`
	TenantID    string `json:"tenant_id"    gorm:"type:varchar(64);not null;index:idx_catalog_tenant,priority:1"`
	Position    int    `json:"position"     gorm:"not null;default:0;index:idx_catalog_tenant,priority:2"`
	Name        string `json:"name"         gorm:"type:varchar(255);not null"`
	Description string `json:"description"  gorm:"type:text"`
	Price       int64  `json:"price"        gorm:"not null;check:price >= 0"`
	Category    string `json:"category"     gorm:"type:varchar(128)"`
	ImageURL    string `json:"image_url"    gorm:"type:text"`
	IsAvailable bool   `json:"is_available" gorm:"not null"`
}

// TableName returns the database table name for CatalogItem.
func (CatalogItem) TableName() string { return "catalog_items" }

// Conversation is keyed by (tenant, counterparty) and stores the bounded
// history and the metadata bag as JSON columns. Version is bumped on every
// write and used for compare-and-swap updates.
type Conversation struct {
	ID           uint      `json:"-"            gorm:"primaryKey"`
	TenantID     string    `json:"tenant_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_conv_tenant_party,priority:1"`
	Counterparty string    `json:"counterparty" gorm:"type:varchar(64);not null;uniqueIndex:ux_conv_tenant_party,priority:2"`
	History      []Message `json:"history"      gorm:"type:text;serializer:json"`
	Metadata     Metadata  `json:"metadata"     gorm:"type:text;serializer:json"`
	Version      int64     `json:"version"      gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// OrderStatus is the lifecycle state of an OrderRecord.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
	OrderPreparing OrderStatus = "preparing"
	OrderDelivered OrderStatus = "delivered"
)

// OrderRecord is created exactly once per confirmed PendingOrder.
type OrderRecord struct {
	ID           string      `json:"id"            gorm:"type:varchar(64);primaryKey"`
	TenantID     string      `json:"tenant_id"     gorm:"type:varchar(64);not null;index:idx_orders_tenant_party,priority:1"`
	Counterparty string      `json:"counterparty"  gorm:"type:varchar(64);not null;index:idx_orders_tenant_party,priority:2"`
	CustomerName string      `json:"customer_name" gorm:"type:varchar(255)"`
	LineItems    []LineItem  `json:"line_items"    gorm:"type:text;serializer:json"`
	ItemsSummary string      `json:"items_summary" gorm:"type:text"`
	NotFound     []string    `json:"not_found"     gorm:"type:text;serializer:json"`
	Total        int64       `json:"total"         gorm:"not null"`
	Notes        string      `json:"notes"         gorm:"type:text"`
	Status       OrderStatus `json:"status"        gorm:"type:varchar(16);not null;check:status IN ('pending','confirmed','cancelled','preparing','delivered')"`
	CreatedAt    time.Time   `json:"created_at"    gorm:"index:idx_orders_tenant_party,priority:3"`
}

// TableName returns the database table name for OrderRecord.
func (OrderRecord) TableName() string { return "orders" }
