package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"case-tracker/internal/models"
	"case-tracker/internal/services/inventory"
	"case-tracker/internal/services/pricing"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BaseCurrency is the currency all prices are recorded in; rates convert
// from it.
const BaseCurrency = "USD"

// Store is the handle to the snapshot schema. Its lifecycle (open/close,
// transaction scope) is owned by the caller.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetUser returns the cached profile, or nil when the user was never synced.
func (s *Store) GetUser(userID string) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// LastUpdate returns the most recent snapshot for a user, or nil when there
// is none. Ordering is by time then identity, matching snapshot monotonicity.
func (s *Store) LastUpdate(userID string) (*models.Update, error) {
	var update models.Update
	err := s.db.Where("user_id = ?", userID).
		Order("updated_at DESC").Order("id DESC").
		First(&update).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last update: %w", err)
	}
	return &update, nil
}

// EnsureUser inserts the profile or refreshes its display fields.
func (s *Store) EnsureUser(user *models.User) error {
	return ensureUser(s.db, user)
}

func ensureUser(tx *gorm.DB, user *models.User) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nick", "avatar_hash"}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func ensureItems(tx *gorm.DB, items []inventory.OwnedItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]models.Item, len(items))
	for i, item := range items {
		rows[i] = models.Item{ID: item.ID, Name: item.Name, IconHash: item.IconHash}
	}
	// Catalog identity is stable across users; conflicts are no-ops.
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("ensure items: %w", err)
	}
	return nil
}

// reconcileOwnership converges user_item rows to exactly the fetched set:
// counts are upserted and rows for items no longer owned are removed. Stale
// rows left behind would corrupt every future valuation.
func reconcileOwnership(tx *gorm.DB, userID string, items []inventory.OwnedItem) error {
	if len(items) == 0 {
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserItem{}).Error; err != nil {
			return fmt.Errorf("reconcile ownership: %w", err)
		}
		return nil
	}

	rows := make([]models.UserItem, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		rows[i] = models.UserItem{UserID: userID, ItemID: item.ID, Count: item.Count}
		ids[i] = item.ID
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"count"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("reconcile ownership: %w", err)
	}

	err = tx.Where("user_id = ? AND item_id NOT IN ?", userID, ids).
		Delete(&models.UserItem{}).Error
	if err != nil {
		return fmt.Errorf("reconcile ownership: %w", err)
	}
	return nil
}

// CommitSnapshot durably records one sync: the profile, the item catalog,
// reconciled ownership, the update row and all its price and rate facts.
// Everything runs in one transaction, so a half-written snapshot is never
// observable and any failure leaves the store in its pre-sync state.
func (s *Store) CommitSnapshot(user *models.User, at time.Time, priced []pricing.PricedItem, rates map[string]float64) (*models.Update, error) {
	items := make([]inventory.OwnedItem, len(priced))
	for i, p := range priced {
		items[i] = p.OwnedItem
	}

	update := models.Update{UserID: user.ID, UpdatedAt: at}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUser(tx, user); err != nil {
			return err
		}
		if err := ensureItems(tx, items); err != nil {
			return err
		}
		if err := reconcileOwnership(tx, user.ID, items); err != nil {
			return err
		}

		if err := tx.Create(&update).Error; err != nil {
			return fmt.Errorf("create update: %w", err)
		}

		if len(priced) > 0 {
			prices := make([]models.ItemPrice, len(priced))
			for i, p := range priced {
				prices[i] = models.ItemPrice{ItemID: p.ID, Price: p.Price, UpdateID: update.ID}
			}
			if err := tx.Create(&prices).Error; err != nil {
				return fmt.Errorf("create item prices: %w", err)
			}
		}

		if len(rates) > 0 {
			codes := make([]string, 0, len(rates))
			for code := range rates {
				codes = append(codes, code)
			}
			sort.Strings(codes)
			rateRows := make([]models.CurrencyRate, len(codes))
			for i, code := range codes {
				rateRows[i] = models.CurrencyRate{Code: code, Rate: rates[code], UpdateID: update.ID}
			}
			if err := tx.Create(&rateRows).Error; err != nil {
				return fmt.Errorf("create currency rates: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return &update, nil
}

// ReplaceInventory reconciles ownership outside of a snapshot commit, for
// the standalone inventory-refresh action. No update row is created, so no
// price history is written.
func (s *Store) ReplaceInventory(userID string, items []inventory.OwnedItem) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureItems(tx, items); err != nil {
			return err
		}
		return reconcileOwnership(tx, userID, items)
	})
}

// DeleteUser removes a tracked user and, cascading, every snapshot fact.
// This is the only sanctioned deletion path into price history.
func (s *Store) DeleteUser(userID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(`DELETE FROM item_prices WHERE update_id IN (SELECT id FROM user_updates WHERE user_id = ?)`, userID).Error
		if err != nil {
			return fmt.Errorf("delete item prices: %w", err)
		}
		err = tx.Exec(`DELETE FROM currency_rates WHERE update_id IN (SELECT id FROM user_updates WHERE user_id = ?)`, userID).Error
		if err != nil {
			return fmt.Errorf("delete currency rates: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Update{}).Error; err != nil {
			return fmt.Errorf("delete updates: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserItem{}).Error; err != nil {
			return fmt.Errorf("delete user items: %w", err)
		}
		if err := tx.Delete(&models.User{}, "id = ?", userID).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}
