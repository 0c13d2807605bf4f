package jackett

import (
	"context"
	"net/url"
	"strconv"

	"github.com/reelscout/reelscout/internal/indexer/types"
)

// JackettResult is one entry of a Jackett results response.
type JackettResult struct {
	Title     string `json:"Title"`
	Tracker   string `json:"Tracker"`
	Link      string `json:"Link"`
	MagnetURI string `json:"MagnetUri"`
	InfoHash  string `json:"InfoHash"`
	Size      int64  `json:"Size"`
	Seeders   int    `json:"Seeders"`
	Peers     int    `json:"Peers"`
	Imdb      int64  `json:"Imdb"`
}

type jackettResponse struct {
	Results []JackettResult `json:"Results"`
}

// ProwlarrResult is one entry of a Prowlarr search response.
type ProwlarrResult struct {
	GUID        string `json:"guid"`
	Size        int64  `json:"size"`
	Indexer     string `json:"indexer"`
	Title       string `json:"title"`
	ImdbID      int    `json:"imdbId"`
	PublishDate string `json:"publishDate"`
	DownloadURL string `json:"downloadUrl"`
	MagnetURL   string `json:"magnetUrl"`
	InfoURL     string `json:"infoUrl"`
	Seeders     int    `json:"seeders"`
	Leechers    int    `json:"leechers"`
	Protocol    string `json:"protocol"`
	InfoHash    string `json:"infoHash"`
}

func (s *Scraper) searchJackett(ctx context.Context, term string, query types.Query) ([]types.RawResult, error) {
	params := url.Values{}
	params.Set("apikey", s.instance.APIKey)
	params.Set("Query", term)
	params.Add("Category[]", strconv.Itoa(categoryFor(query)))

	path := "/api/v2.0/indexers/" + s.instance.Option("indexer", "all") + "/results"

	var resp jackettResponse
	if err := s.client.GetJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	out := make([]types.RawResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		hash, magnet := hashFor(r.InfoHash, r.MagnetURI, r.Link)
		if hash == "" || r.Title == "" {
			continue
		}
		out = append(out, s.newResult(r.Title, r.Size, r.Seeders, hash, magnet, r.Tracker))
	}
	return out, nil
}

func (s *Scraper) searchProwlarr(ctx context.Context, term string, query types.Query) ([]types.RawResult, error) {
	params := url.Values{}
	params.Set("query", term)
	params.Set("type", "search")
	params.Add("categories", strconv.Itoa(categoryFor(query)))
	params.Set("limit", s.instance.Option("limit", "100"))

	var resp []ProwlarrResult
	if err := s.client.GetJSON(ctx, "/api/v1/search", params, &resp); err != nil {
		return nil, err
	}

	out := make([]types.RawResult, 0, len(resp))
	for _, r := range resp {
		if r.Protocol != "" && r.Protocol != "torrent" {
			continue
		}
		hash, magnet := hashFor(r.InfoHash, r.MagnetURL, r.DownloadURL, r.GUID)
		if hash == "" || r.Title == "" {
			continue
		}
		out = append(out, s.newResult(r.Title, r.Size, r.Seeders, hash, magnet, r.Indexer))
	}
	return out, nil
}
