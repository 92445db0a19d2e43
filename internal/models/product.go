package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a product in the store.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string          `json:"name" gorm:"type:varchar(100);not null"`
	Description string          `json:"description" gorm:"type:varchar(500)"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Stock       int             `json:"stock" gorm:"not null;default:0"`
	ImageURL    string          `json:"image_url" gorm:"type:varchar(255)"`
	CategoryID  string          `json:"category_id" gorm:"type:varchar(36);not null;index"`
	SellerID    string          `json:"seller_id" gorm:"type:varchar(36);not null;index"`
	Rating      float64         `json:"rating" gorm:"not null;default:0"` // mean grade of active reviews
	IsActive    bool            `json:"is_active" gorm:"not null;default:true;index"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
