package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"case-tracker/internal/models"
	"case-tracker/internal/services/inventory"
	"case-tracker/internal/services/pricing"
	"case-tracker/internal/services/steam"
	"case-tracker/internal/store"
)

// SteamGateway is the slice of the Steam service the tracker needs.
type SteamGateway interface {
	ResolveVanityURL(ctx context.Context, name string) (string, error)
	GetPlayerSummary(ctx context.Context, steamID string) (*models.User, error)
	GetInventory(ctx context.Context, steamID string) (*steam.Inventory, error)
	GetMarketPrice(ctx context.Context, marketHashName string) (float64, error)
}

// RateGateway fetches currency conversion rates from the base currency.
type RateGateway interface {
	GetRates(ctx context.Context, codes []string) (map[string]float64, error)
}

// Options tune the sync pipeline.
type Options struct {
	// FreshnessWindow is how long a snapshot is served from cache.
	FreshnessWindow time.Duration
	// Currencies are the tracked conversion targets.
	Currencies []string
	// ItemFilter is the name marker an item must contain to be priced.
	ItemFilter string
}

// Valuation bundles everything a caller needs to render a user's portfolio.
type Valuation struct {
	User     *models.User        `json:"user"`
	Update   *models.Update      `json:"update"`
	Holdings []store.Holding     `json:"holdings"`
	Series   []store.SeriesPoint `json:"series"`
	Cached   bool                `json:"cached"`
}

// Service orchestrates the sync pipeline: staleness check, external fetches,
// atomic snapshot commit and valuation reads.
type Service struct {
	store   *store.Store
	steam   SteamGateway
	rates   RateGateway
	fetcher *pricing.Fetcher
	opts    Options
	hub     *Hub

	// userLocks serializes syncs per Steam ID so two concurrent syncs
	// cannot interleave ownership reconciliation.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex

	now func() time.Time
}

func New(st *store.Store, sg SteamGateway, rg RateGateway, opts Options) *Service {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = 3 * time.Hour
	}
	if len(opts.Currencies) == 0 {
		opts.Currencies = []string{"PLN", "EUR"}
	}
	if opts.ItemFilter == "" {
		opts.ItemFilter = "Case"
	}
	return &Service{
		store:     st,
		steam:     sg,
		rates:     rg,
		fetcher:   pricing.NewFetcher(sg),
		opts:      opts,
		hub:       NewHub(),
		userLocks: make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// Events exposes the sync progress feed.
func (s *Service) Events() *Hub {
	return s.hub
}

func (s *Service) userLock(steamID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[steamID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[steamID] = lock
	}
	return lock
}

func (s *Service) publish(user string, stage Stage, detail string) {
	s.hub.Publish(SyncEvent{User: user, Stage: stage, Detail: detail, At: s.now()})
}

func (s *Service) resolve(ctx context.Context, name string) (string, error) {
	s.publish(name, StageResolving, "")
	steamID, err := s.steam.ResolveVanityURL(ctx, name)
	if errors.Is(err, steam.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrIdentityNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	return steamID, nil
}

// SyncUser serves the valuation for a vanity name, syncing first when the
// cached snapshot is stale, absent or force-overridden. Fresh users skip all
// external fetches beyond name resolution.
func (s *Service) SyncUser(ctx context.Context, name string, force bool, since time.Time) (*Valuation, error) {
	steamID, err := s.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(steamID)
	lock.Lock()
	defer lock.Unlock()

	cachedUser, err := s.store.GetUser(steamID)
	if err != nil {
		return nil, err
	}
	lastUpdate, err := s.store.LastUpdate(steamID)
	if err != nil {
		return nil, err
	}

	if !force && cachedUser != nil && lastUpdate != nil &&
		s.now().Sub(lastUpdate.UpdatedAt) < s.opts.FreshnessWindow {
		s.publish(name, StageCached, "serving cached snapshot")
		return s.valuation(cachedUser, lastUpdate, since, true)
	}

	update, user, err := s.sync(ctx, name, steamID)
	if err != nil {
		s.publish(name, StageFailed, err.Error())
		return nil, err
	}
	s.publish(name, StageDone, "")
	return s.valuation(user, update, since, false)
}

// sync runs the full pipeline for one user. Any failure aborts the attempt
// with the store untouched.
func (s *Service) sync(ctx context.Context, name, steamID string) (*models.Update, *models.User, error) {
	s.publish(name, StageProfile, "")
	profile, err := s.steam.GetPlayerSummary(ctx, steamID)
	if errors.Is(err, steam.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, steamID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("fetch profile: %w", err)
	}

	s.publish(name, StageInventory, "")
	raw, err := s.steam.GetInventory(ctx, steamID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch inventory: %w", err)
	}
	items := inventory.Normalize(raw, s.opts.ItemFilter)
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w (filter %q)", ErrEmptyInventory, s.opts.ItemFilter)
	}

	s.publish(name, StagePricing, fmt.Sprintf("%d items", len(items)))
	priced, err := s.fetcher.FetchAll(ctx, items)
	if err != nil {
		if errors.Is(err, pricing.ErrIncomplete) {
			return nil, nil, fmt.Errorf("%w: %v", ErrPriceFetchIncomplete, err)
		}
		return nil, nil, fmt.Errorf("fetch prices: %w", err)
	}

	s.publish(name, StageRates, "")
	rates, err := s.rates.GetRates(ctx, s.opts.Currencies)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch currency rates: %w", err)
	}

	s.publish(name, StageCommitting, "")
	update, err := s.store.CommitSnapshot(profile, s.now(), priced, rates)
	if err != nil {
		return nil, nil, err
	}
	return update, profile, nil
}

func (s *Service) valuation(user *models.User, update *models.Update, since time.Time, cached bool) (*Valuation, error) {
	holdings, err := s.store.Holdings(user.ID)
	if err != nil {
		return nil, err
	}
	series, err := s.store.TimeSeries(user.ID, since)
	if err != nil {
		return nil, err
	}
	return &Valuation{
		User:     user,
		Update:   update,
		Holdings: holdings,
		Series:   series,
		Cached:   cached,
	}, nil
}

// Valuation reads the committed history for an already-resolved user without
// touching any external service.
func (s *Service) Valuation(ctx context.Context, name string, since time.Time) (*Valuation, error) {
	steamID, err := s.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(steamID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s never synced", ErrIdentityNotFound, name)
	}
	update, err := s.store.LastUpdate(steamID)
	if err != nil {
		return nil, err
	}
	return s.valuation(user, update, since, true)
}

// RefreshProfile re-fetches display fields only; no snapshot is created.
func (s *Service) RefreshProfile(ctx context.Context, name string) (*models.User, error) {
	steamID, err := s.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	profile, err := s.steam.GetPlayerSummary(ctx, steamID)
	if errors.Is(err, steam.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, steamID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if err := s.store.EnsureUser(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// RefreshInventory re-reconciles ownership against the live inventory
// without recording a snapshot, so no price history is written.
func (s *Service) RefreshInventory(ctx context.Context, name string) error {
	steamID, err := s.resolve(ctx, name)
	if err != nil {
		return err
	}

	lock := s.userLock(steamID)
	lock.Lock()
	defer lock.Unlock()

	raw, err := s.steam.GetInventory(ctx, steamID)
	if err != nil {
		return fmt.Errorf("fetch inventory: %w", err)
	}
	items := inventory.Normalize(raw, s.opts.ItemFilter)
	if len(items) == 0 {
		return fmt.Errorf("%w (filter %q)", ErrEmptyInventory, s.opts.ItemFilter)
	}
	return s.store.ReplaceInventory(steamID, items)
}

// DeleteUser removes a tracked user and all history.
func (s *Service) DeleteUser(ctx context.Context, name string) error {
	steamID, err := s.resolve(ctx, name)
	if err != nil {
		return err
	}

	lock := s.userLock(steamID)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.store.GetUser(steamID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: %s never synced", ErrIdentityNotFound, name)
	}
	return s.store.DeleteUser(steamID)
}
