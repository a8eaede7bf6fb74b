package database

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/utils"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed menu_seed.yaml
var menuSeed []byte

type seedItem struct {
	Name        string  `yaml:"name"`
	Category    string  `yaml:"category"`
	Price       float64 `yaml:"price"`
	Description string  `yaml:"description"`
	Available   *bool   `yaml:"available"`
}

// SampleMenu decodes the bundled menu.
func SampleMenu() ([]models.MenuItem, error) {
	var raw []seedItem
	if err := yaml.Unmarshal(menuSeed, &raw); err != nil {
		return nil, fmt.Errorf("decode menu seed: %w", err)
	}
	items := make([]models.MenuItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, models.MenuItem{
			Name:        r.Name,
			Category:    r.Category,
			Price:       r.Price,
			Description: r.Description,
			IsAvailable: r.Available == nil || *r.Available,
		})
	}
	return items, nil
}

// SeedMenu loads the sample menu into an empty menu table and reports how
// many items were inserted. A menu that already has items is left alone.
func SeedMenu(ctx context.Context, db *gorm.DB) (int, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.MenuItem{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		utils.InfoLogger.Printf("Menu already has %d items, skipping seed", count)
		return 0, nil
	}

	items, err := SampleMenu()
	if err != nil {
		return 0, err
	}
	if err := db.WithContext(ctx).CreateInBatches(&items, 50).Error; err != nil {
		return 0, fmt.Errorf("insert menu: %w", err)
	}
	utils.InfoLogger.Printf("Seeded %d menu items", len(items))
	return len(items), nil
}

// EnsureAdmin creates the bootstrap admin account unless a user with that
// email exists. An empty email or password skips it.
func EnsureAdmin(ctx context.Context, db *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		utils.InfoLogger.Println("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}
	email = strings.ToLower(email)

	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{Name: "Administrator", Email: email, Password: string(hashed), Role: models.RoleAdmin}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	utils.InfoLogger.Printf("Created admin user %s", email)
	return nil
}
