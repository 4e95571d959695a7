package store

import (
	"fmt"
	"time"
)

// Holding is one currently-owned item priced at the latest snapshot, with
// price extremes over the full recorded history of that item.
type Holding struct {
	ItemID   string  `json:"id" gorm:"column:item_id"`
	Name     string  `json:"name" gorm:"column:name"`
	IconHash string  `json:"icon_hash" gorm:"column:icon_hash"`
	Count    uint    `json:"count" gorm:"column:count"`
	Price    float64 `json:"price" gorm:"column:price"`
	Sum      float64 `json:"sum" gorm:"column:item_sum"`
	Min      float64 `json:"min" gorm:"column:min_price"`
	Max      float64 `json:"max" gorm:"column:max_price"`
}

// SeriesPoint is the total portfolio value at one snapshot in one currency.
type SeriesPoint struct {
	UpdatedAt time.Time `json:"updated_at"`
	Code      string    `json:"code"`
	Value     float64   `json:"value"`
}

// Holdings joins current ownership with the latest snapshot's prices. The
// min/max columns aggregate over ALL recorded prices for each item, across
// snapshot boundaries, not just the chosen snapshot.
func (s *Store) Holdings(userID string) ([]Holding, error) {
	var holdings []Holding
	err := s.db.Raw(`
		SELECT i.id AS item_id,
		       i.name AS name,
		       i.icon_hash AS icon_hash,
		       ui.count AS count,
		       COALESCE(ip.price, 0) AS price,
		       COALESCE(ip.price, 0) * ui.count AS item_sum,
		       COALESCE(hist.min_price, 0) AS min_price,
		       COALESCE(hist.max_price, 0) AS max_price
		FROM user_items ui
		INNER JOIN items i ON i.id = ui.item_id
		LEFT JOIN item_prices ip ON ip.item_id = ui.item_id AND ip.update_id = (
			SELECT id FROM user_updates
			WHERE user_id = ?
			ORDER BY updated_at DESC, id DESC
			LIMIT 1
		)
		LEFT JOIN (
			SELECT item_id, MIN(price) AS min_price, MAX(price) AS max_price
			FROM item_prices
			GROUP BY item_id
		) hist ON hist.item_id = ui.item_id
		WHERE ui.user_id = ?
		ORDER BY i.name ASC`, userID, userID).
		Scan(&holdings).Error
	if err != nil {
		return nil, fmt.Errorf("holdings: %w", err)
	}
	return holdings, nil
}

// TimeSeries returns, for every snapshot at or after since, the summed
// portfolio value in the base currency plus one converted total per currency
// rate recorded at that snapshot. Current ownership counts are joined
// against each snapshot's recorded prices; a snapshot with no rate for some
// currency simply has no row for it. Rows are ordered by timestamp, the base
// currency leading each snapshot's group.
func (s *Store) TimeSeries(userID string, since time.Time) ([]SeriesPoint, error) {
	type snapshotTotal struct {
		UpdateID  uint      `gorm:"column:update_id"`
		UpdatedAt time.Time `gorm:"column:updated_at"`
		Total     float64   `gorm:"column:total_value"`
	}
	var totals []snapshotTotal
	err := s.db.Raw(`
		SELECT u.id AS update_id, u.updated_at AS updated_at, SUM(ip.price * ui.count) AS total_value
		FROM user_updates u
		INNER JOIN item_prices ip ON ip.update_id = u.id
		INNER JOIN user_items ui ON ui.item_id = ip.item_id AND ui.user_id = u.user_id
		WHERE u.user_id = ? AND u.updated_at >= ?
		GROUP BY u.id, u.updated_at
		ORDER BY u.updated_at ASC, u.id ASC`, userID, since).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("time series totals: %w", err)
	}

	type snapshotRate struct {
		UpdateID uint    `gorm:"column:update_id"`
		Code     string  `gorm:"column:code"`
		Rate     float64 `gorm:"column:rate"`
	}
	var rates []snapshotRate
	err = s.db.Raw(`
		SELECT cr.update_id AS update_id, cr.code AS code, cr.rate AS rate
		FROM currency_rates cr
		INNER JOIN user_updates u ON u.id = cr.update_id
		WHERE u.user_id = ? AND u.updated_at >= ?
		ORDER BY cr.code ASC`, userID, since).
		Scan(&rates).Error
	if err != nil {
		return nil, fmt.Errorf("time series rates: %w", err)
	}

	ratesByUpdate := make(map[uint][]snapshotRate)
	for _, rate := range rates {
		ratesByUpdate[rate.UpdateID] = append(ratesByUpdate[rate.UpdateID], rate)
	}

	series := make([]SeriesPoint, 0, len(totals)*(1+len(ratesByUpdate)))
	for _, total := range totals {
		series = append(series, SeriesPoint{
			UpdatedAt: total.UpdatedAt,
			Code:      BaseCurrency,
			Value:     total.Total,
		})
		for _, rate := range ratesByUpdate[total.UpdateID] {
			series = append(series, SeriesPoint{
				UpdatedAt: total.UpdatedAt,
				Code:      rate.Code,
				Value:     total.Total * rate.Rate,
			})
		}
	}
	return series, nil
}
