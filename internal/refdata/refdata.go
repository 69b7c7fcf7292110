// Package refdata is an example implementation of the out-of-scope
// Reference Data collaborator: sport/league/fixture/market discovery used
// only by the operator surface's position-creation helper. No core
// component (Order Book Mirror, Market Monitor, Position Controller)
// depends on this package.
package refdata

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

type Sport struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type League struct {
	ID      string `json:"id"`
	SportID string `json:"sportId"`
	Name    string `json:"name"`
}

type Fixture struct {
	ID        string    `json:"id"`
	LeagueID  string    `json:"leagueId"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"startTime"`
}

type Market struct {
	ID        string `json:"id"`
	FixtureID string `json:"fixtureId"`
	Name      string `json:"name"`
	SideAName string `json:"sideAName"`
	SideBName string `json:"sideBName"`
}

const pageSize = 100

// Client is a read-only discovery client over a Gamma-style REST API.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
		logger: logger.With("component", "refdata"),
	}
}

func (c *Client) ListSports(ctx context.Context) ([]Sport, error) {
	var sports []Sport
	resp, err := c.http.R().SetContext(ctx).SetResult(&sports).Get("/sports")
	if err != nil {
		return nil, fmt.Errorf("list sports: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("list sports: status %d", resp.StatusCode())
	}
	return sports, nil
}

func (c *Client) ListLeagues(ctx context.Context, sportID string) ([]League, error) {
	var leagues []League
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("sportId", sportID).
		SetResult(&leagues).
		Get("/leagues")
	if err != nil {
		return nil, fmt.Errorf("list leagues for sport %s: %w", sportID, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("list leagues for sport %s: status %d", sportID, resp.StatusCode())
	}
	return leagues, nil
}

func (c *Client) ListFixtures(ctx context.Context, leagueID string) ([]Fixture, error) {
	var fixtures []Fixture
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("leagueId", leagueID).
		SetResult(&fixtures).
		Get("/fixtures")
	if err != nil {
		return nil, fmt.Errorf("list fixtures for league %s: %w", leagueID, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("list fixtures for league %s: status %d", leagueID, resp.StatusCode())
	}
	return fixtures, nil
}

// ListMarkets pages through the fixture's markets, following the same
// offset/limit loop the venue's market-discovery endpoint expects.
func (c *Client) ListMarkets(ctx context.Context, fixtureID string) ([]Market, error) {
	var all []Market
	offset := 0
	for {
		var page []Market
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"fixtureId": fixtureID,
				"limit":     strconv.Itoa(pageSize),
				"offset":    strconv.Itoa(offset),
			}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("list markets for fixture %s, offset %d: %w", fixtureID, offset, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("list markets for fixture %s: status %d", fixtureID, resp.StatusCode())
		}

		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	return all, nil
}
