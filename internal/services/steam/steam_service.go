package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"case-tracker/internal/models"

	"github.com/go-resty/resty/v2"
)

// ErrNotFound is returned when a vanity name or Steam ID does not resolve to
// a profile.
var ErrNotFound = errors.New("steam profile not found")

// Service is the gateway to the Steam Web API and the community market.
type Service struct {
	apiKey        string
	client        *resty.Client
	apiBase       string
	communityBase string
}

type vanityResponse struct {
	Response struct {
		SteamID string `json:"steamid"`
		Success int    `json:"success"`
	} `json:"response"`
}

type playerSummariesResponse struct {
	Response struct {
		Players []struct {
			SteamID     string `json:"steamid"`
			PersonaName string `json:"personaname"`
			AvatarHash  string `json:"avatarhash"`
		} `json:"players"`
	} `json:"response"`
}

type marketPriceResponse struct {
	Success     bool   `json:"success"`
	LowestPrice string `json:"lowest_price"`
	Volume      string `json:"volume"`
	MedianPrice string `json:"median_price"`
}

// Asset is one owned unit in a raw inventory payload.
type Asset struct {
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
}

// Description is the catalog entry for a class id in a raw inventory payload.
type Description struct {
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Name       string `json:"name"`
	MarketName string `json:"market_hash_name"`
	IconURL    string `json:"icon_url"`
	Tradable   int    `json:"tradable"`
	Marketable int    `json:"marketable"`
}

// Inventory is the raw CS:GO inventory payload: owned units plus the
// descriptions they reference.
type Inventory struct {
	Assets       []Asset       `json:"assets"`
	Descriptions []Description `json:"descriptions"`
	Success      int           `json:"success"`
}

func NewService(apiKey string, timeout time.Duration) *Service {
	client := resty.New()
	client.SetTimeout(timeout)

	return &Service{
		apiKey:        apiKey,
		client:        client,
		apiBase:       "https://api.steampowered.com",
		communityBase: "https://steamcommunity.com",
	}
}

// SetBaseURLs overrides the Steam endpoints; used by tests.
func (s *Service) SetBaseURLs(apiBase, communityBase string) {
	s.apiBase = apiBase
	s.communityBase = communityBase
}

// ResolveVanityURL turns a vanity profile name into a Steam ID.
func (s *Service) ResolveVanityURL(ctx context.Context, name string) (string, error) {
	reqURL := fmt.Sprintf("%s/ISteamUser/ResolveVanityURL/v1/?key=%s&vanityurl=%s",
		s.apiBase, s.apiKey, url.QueryEscape(name))

	resp, err := s.client.R().SetContext(ctx).Get(reqURL)
	if err != nil {
		return "", fmt.Errorf("resolve vanity url: %w", err)
	}

	var vanity vanityResponse
	if err := json.Unmarshal(resp.Body(), &vanity); err != nil {
		return "", fmt.Errorf("resolve vanity url: %w", err)
	}
	if vanity.Response.Success != 1 || vanity.Response.SteamID == "" {
		return "", ErrNotFound
	}
	return vanity.Response.SteamID, nil
}

// GetPlayerSummary fetches the display name and avatar for a Steam ID.
func (s *Service) GetPlayerSummary(ctx context.Context, steamID string) (*models.User, error) {
	reqURL := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?key=%s&steamids=%s",
		s.apiBase, s.apiKey, steamID)

	resp, err := s.client.R().SetContext(ctx).Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("get player summary: %w", err)
	}

	var summaries playerSummariesResponse
	if err := json.Unmarshal(resp.Body(), &summaries); err != nil {
		return nil, fmt.Errorf("get player summary: %w", err)
	}
	if len(summaries.Response.Players) == 0 {
		return nil, ErrNotFound
	}

	player := summaries.Response.Players[0]
	return &models.User{
		ID:         steamID,
		Nick:       player.PersonaName,
		AvatarHash: player.AvatarHash,
	}, nil
}

// GetInventory fetches the raw CS:GO inventory for a Steam ID.
func (s *Service) GetInventory(ctx context.Context, steamID string) (*Inventory, error) {
	reqURL := fmt.Sprintf("%s/inventory/%s/730/2?l=english&count=5000", s.communityBase, steamID)

	resp, err := s.client.R().SetContext(ctx).Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}

	var inv Inventory
	if err := json.Unmarshal(resp.Body(), &inv); err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	if inv.Success != 1 {
		return nil, fmt.Errorf("get inventory: steam returned success=%d", inv.Success)
	}
	return &inv, nil
}

// GetMarketPrice fetches the lowest community-market listing for a market
// hash name, in USD.
func (s *Service) GetMarketPrice(ctx context.Context, marketHashName string) (float64, error) {
	reqURL := fmt.Sprintf("%s/market/priceoverview/?appid=730&currency=1&market_hash_name=%s",
		s.communityBase, url.QueryEscape(marketHashName))

	resp, err := s.client.R().SetContext(ctx).Get(reqURL)
	if err != nil {
		return 0, fmt.Errorf("get market price: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("get market price: status %d", resp.StatusCode())
	}

	var price marketPriceResponse
	if err := json.Unmarshal(resp.Body(), &price); err != nil {
		return 0, fmt.Errorf("get market price: %w", err)
	}
	if !price.Success || price.LowestPrice == "" {
		return 0, fmt.Errorf("get market price: no listing for %q", marketHashName)
	}
	return ParsePrice(price.LowestPrice)
}

// ParsePrice converts a formatted market price string ("$1.23", "5,60€",
// "1,234.56 USD") to a number. The rightmost of '.' and ',' is taken as the
// decimal separator; any other separators are treated as grouping.
func ParsePrice(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("unparseable price %q", raw)
	}

	sep := strings.LastIndexAny(cleaned, ".,")
	if sep >= 0 {
		intPart := strings.Map(func(r rune) rune {
			if r == '.' || r == ',' {
				return -1
			}
			return r
		}, cleaned[:sep])
		frac := cleaned[sep+1:]
		if strings.ContainsAny(frac, ".,") {
			return 0, fmt.Errorf("unparseable price %q", raw)
		}
		cleaned = intPart + "." + frac
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q: %w", raw, err)
	}
	return value, nil
}
