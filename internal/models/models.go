package models

import (
	"time"
)

// User is a tracked Steam profile. Display fields are overwritten on every
// successful profile refresh; the external Steam ID is the identity.
type User struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	Nick       string `json:"nick" gorm:"size:128;not null"`
	AvatarHash string `json:"avatar_hash" gorm:"size:256;not null"`
}

// Item is one catalog entry (a Steam class id). Items are created once and
// shared across users; re-inserting an existing id is a no-op.
type Item struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	Name     string `json:"name" gorm:"size:128;not null"`
	IconHash string `json:"icon_hash" gorm:"size:256;not null"`
}

// UserItem is current ownership only. Counts are reconciled to the fetched
// inventory on each sync and carry no history.
type UserItem struct {
	UserID string `json:"user_id" gorm:"primaryKey;size:32"`
	ItemID string `json:"item_id" gorm:"primaryKey;size:32"`
	Count  uint   `json:"count" gorm:"not null"`
}

// Update is one point-in-time sync event for a user. It is the versioning
// axis: every price and currency-rate fact is keyed to an update id, never to
// a raw timestamp, so two syncs in the same instant stay distinguishable.
type Update struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"size:32;not null;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
	User      User      `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (Update) TableName() string { return "user_updates" }

// ItemPrice is a price for one item recorded at one update. Rows are
// append-only: never updated, deleted only when the owning user is removed.
type ItemPrice struct {
	ItemID   string  `json:"item_id" gorm:"size:32;not null;index"`
	Price    float64 `json:"price" gorm:"not null"`
	UpdateID uint    `json:"update_id" gorm:"not null;index"`
	Update   Update  `json:"-" gorm:"foreignKey:UpdateID;constraint:OnDelete:CASCADE"`
}

// CurrencyRate is a conversion rate from the base currency recorded at one
// update, one row per tracked currency code.
type CurrencyRate struct {
	Code     string  `json:"code" gorm:"size:3;not null"`
	Rate     float64 `json:"rate" gorm:"not null"`
	UpdateID uint    `json:"update_id" gorm:"not null;index"`
	Update   Update  `json:"-" gorm:"foreignKey:UpdateID;constraint:OnDelete:CASCADE"`
}
