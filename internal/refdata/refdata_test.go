package refdata

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListSports(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sports" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]Sport{{ID: "s1", Name: "Basketball"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	sports, err := c.ListSports(context.Background())
	if err != nil {
		t.Fatalf("ListSports: unexpected error %v", err)
	}
	if len(sports) != 1 || sports[0].ID != "s1" {
		t.Errorf("ListSports = %+v, want one sport with id s1", sports)
	}
}

func TestListLeaguesPassesSportID(t *testing.T) {
	t.Parallel()

	var gotSportID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSportID = r.URL.Query().Get("sportId")
		json.NewEncoder(w).Encode([]League{{ID: "l1", SportID: gotSportID, Name: "NBA"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	leagues, err := c.ListLeagues(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListLeagues: unexpected error %v", err)
	}
	if gotSportID != "s1" {
		t.Errorf("sportId query param = %q, want s1", gotSportID)
	}
	if len(leagues) != 1 {
		t.Errorf("ListLeagues returned %d leagues, want 1", len(leagues))
	}
}

func TestListMarketsStopsOnShortPage(t *testing.T) {
	t.Parallel()

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var page []Market
		switch offset {
		case 0:
			for i := 0; i < pageSize; i++ {
				page = append(page, Market{ID: strconv.Itoa(i), FixtureID: "f1"})
			}
		case pageSize:
			page = []Market{{ID: "last", FixtureID: "f1"}}
		default:
			t.Errorf("unexpected offset %d", offset)
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	markets, err := c.ListMarkets(context.Background(), "f1")
	if err != nil {
		t.Fatalf("ListMarkets: unexpected error %v", err)
	}
	if requests != 2 {
		t.Errorf("expected 2 paginated requests, got %d", requests)
	}
	if len(markets) != pageSize+1 {
		t.Errorf("ListMarkets returned %d markets, want %d", len(markets), pageSize+1)
	}
}

func TestListMarketsPropagatesHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	if _, err := c.ListMarkets(context.Background(), "f1"); err == nil {
		t.Error("expected an error from a 500 response, got nil")
	}
}
