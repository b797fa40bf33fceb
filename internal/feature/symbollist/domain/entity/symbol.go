// Package entity defines the domain models for the symbollist feature.
package entity

import "time"

// Symbol represents a listed security in the symbol/sector master.
// Market is "TWSE" or "TPEX"; Sector is the exchange industry name.
type Symbol struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:20;not null;uniqueIndex"`
	Name      string    `gorm:"size:255;not null"`
	Market    string    `gorm:"size:16;not null;index"`
	Sector    string    `gorm:"size:100;not null;default:'';index"`
	IsActive  bool      `gorm:"not null;default:true"`
	SortKey   int       `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
