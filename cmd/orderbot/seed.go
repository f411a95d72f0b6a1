package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/tbourn/go-order-agent/internal/domain"
	"github.com/tbourn/go-order-agent/internal/repo"
)

// seedFile is the YAML layout accepted by `seed` and `serve --seed`:
//
//	tenants:
//	  - id: chez-awa
//	    name: Chez Awa
//	    phone_number_id: "1234567890"
//	    catalog:
//	      - name: Thieboudienne
//	        price: 2500
type seedFile struct {
	Tenants []seedTenant `yaml:"tenants"`
}

type seedTenant struct {
	ID                  string     `yaml:"id"`
	Name                string     `yaml:"name"`
	Description         string     `yaml:"description"`
	Cuisine             string     `yaml:"cuisine"`
	WelcomeMessage      string     `yaml:"welcome_message"`
	BusinessHours       string     `yaml:"business_hours"`
	SpecialInstructions string     `yaml:"special_instructions"`
	DeliveryInfo        string     `yaml:"delivery_info"`
	OrderingEnabled     *bool      `yaml:"ordering_enabled"`
	KnowledgeBase       string     `yaml:"knowledge_base"`
	Provider            string     `yaml:"provider"`
	PhoneNumberID       string     `yaml:"phone_number_id"`
	VerifyToken         string     `yaml:"verify_token"`
	AppSecret           string     `yaml:"app_secret"`
	AccessToken         string     `yaml:"access_token"`
	GatewayAPIKey       string     `yaml:"gateway_api_key"`
	GatewaySenderID     string     `yaml:"gateway_sender_id"`
	Active              *bool      `yaml:"active"`
	Catalog             []seedItem `yaml:"catalog"`
}

type seedItem struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
	Category    string `yaml:"category"`
	ImageURL    string `yaml:"image_url"`
	Available   *bool  `yaml:"available"`
}

func orTrue(b *bool) bool { return b == nil || *b }

// parseSeed decodes r into tenants. Missing flags default to true and
// items without an id get a random one.
func parseSeed(r io.Reader) ([]domain.Tenant, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	out := make([]domain.Tenant, 0, len(f.Tenants))
	seen := make(map[string]struct{}, len(f.Tenants))
	for i, st := range f.Tenants {
		id := strings.TrimSpace(st.ID)
		if id == "" {
			return nil, fmt.Errorf("tenant #%d: id is required", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("tenant %q: duplicate id", id)
		}
		seen[id] = struct{}{}

		provider := domain.Provider(strings.ToLower(strings.TrimSpace(st.Provider)))
		switch provider {
		case "", domain.ProviderGraph, domain.ProviderGateway:
		default:
			return nil, fmt.Errorf("tenant %q: unknown provider %q", id, st.Provider)
		}

		t := domain.Tenant{
			ID:                  id,
			Name:                st.Name,
			Description:         st.Description,
			Cuisine:             st.Cuisine,
			WelcomeMessage:      st.WelcomeMessage,
			BusinessHours:       st.BusinessHours,
			SpecialInstructions: st.SpecialInstructions,
			DeliveryInfo:        st.DeliveryInfo,
			OrderingEnabled:     orTrue(st.OrderingEnabled),
			KnowledgeBase:       st.KnowledgeBase,
			Provider:            provider,
			PhoneNumberID:       st.PhoneNumberID,
			VerifyToken:         st.VerifyToken,
			AppSecret:           st.AppSecret,
			AccessToken:         st.AccessToken,
			GatewayAPIKey:       st.GatewayAPIKey,
			GatewaySenderID:     st.GatewaySenderID,
			IsActive:            orTrue(st.Active),
		}
		for j, it := range st.Catalog {
			if strings.TrimSpace(it.Name) == "" {
				return nil, fmt.Errorf("tenant %q item #%d: name is required", id, j+1)
			}
			if it.Price < 0 {
				return nil, fmt.Errorf("tenant %q item %q: negative price", id, it.Name)
			}
			itemID := it.ID
			if itemID == "" {
				itemID = uuid.NewString()
			}
			t.Catalog = append(t.Catalog, domain.CatalogItem{
				ID:          itemID,
				TenantID:    id,
				Position:    j + 1,
				Name:        it.Name,
				Description: it.Description,
				Price:       it.Price,
				Category:    it.Category,
				ImageURL:    it.ImageURL,
				IsAvailable: orTrue(it.Available),
			})
		}
		out = append(out, t)
	}
	return out, nil
}

func readSeedFile(path string) ([]domain.Tenant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseSeed(f)
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert tenants and catalogs from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tenants, err := readSeedFile(file)
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := repo.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return seedTenants(cmd.Context(), db, tenants)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "tenants.yaml", "YAML seed file")
	return cmd
}

func seedTenants(ctx context.Context, db *gorm.DB, tenants []domain.Tenant) error {
	for i := range tenants {
		if err := repo.UpsertTenant(ctx, db, &tenants[i]); err != nil {
			return fmt.Errorf("seed tenant %q: %w", tenants[i].ID, err)
		}
		log.Info().Str("tenant_id", tenants[i].ID).Int("items", len(tenants[i].Catalog)).Msg("tenant seeded")
	}
	return nil
}
