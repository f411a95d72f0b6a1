// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read-side lookups for tenants and their
// catalog, plus an upsert used by the seed command.
//
// Lookups only return active tenants unless stated otherwise; callers check
// IsActive themselves when they load by id.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// TenantDirectory is a GORM-backed tenant lookup.
type TenantDirectory struct {
	DB *gorm.DB
}

// NewTenantDirectory wraps db.
func NewTenantDirectory(db *gorm.DB) *TenantDirectory { return &TenantDirectory{DB: db} }

// GetTenant loads a tenant with its catalog ordered by position.
func GetTenant(ctx context.Context, db *gorm.DB, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := db.WithContext(ctx).
		Preload("Catalog", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC, name ASC") }).
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// findTenantBy loads the first tenant whose column equals value.
func findTenantBy(ctx context.Context, db *gorm.DB, column, value string) (*domain.Tenant, error) {
	if strings.TrimSpace(value) == "" {
		return nil, ErrNotFound
	}
	var t domain.Tenant
	err := db.WithContext(ctx).
		Preload("Catalog", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC, name ASC") }).
		Where(column+" = ?", value).
		Order("created_at ASC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ByID implements the service-layer tenant lookup.
func (d *TenantDirectory) ByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return GetTenant(ctx, d.DB, id)
}

// ByPhoneNumberID resolves a tenant by its provider phone identifier.
func (d *TenantDirectory) ByPhoneNumberID(ctx context.Context, phoneID string) (*domain.Tenant, error) {
	return findTenantBy(ctx, d.DB, "phone_number_id", phoneID)
}

// ByAPIKey resolves a tenant by its gateway API key.
func (d *TenantDirectory) ByAPIKey(ctx context.Context, key string) (*domain.Tenant, error) {
	return findTenantBy(ctx, d.DB, "gateway_api_key", key)
}

// HasVerifyToken reports whether any tenant uses token as its webhook verify token.
func (d *TenantDirectory) HasVerifyToken(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	var n int64
	err := d.DB.WithContext(ctx).Model(&domain.Tenant{}).Where("verify_token = ?", token).Count(&n).Error
	return n > 0, err
}

// UpsertTenant inserts or replaces a tenant and its catalog in one transaction.
// Catalog rows missing from t.Catalog are removed.
func UpsertTenant(ctx context.Context, db *gorm.DB, t *domain.Tenant) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("tenant id is required")
	}
	catalog := t.Catalog
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := *t
		row.Catalog = nil
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", t.ID).Delete(&domain.CatalogItem{}).Error; err != nil {
			return err
		}
		for i := range catalog {
			catalog[i].TenantID = t.ID
			if catalog[i].Position == 0 {
				catalog[i].Position = i + 1
			}
		}
		if len(catalog) > 0 {
			if err := tx.Create(&catalog).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
