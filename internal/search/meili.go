package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxRoadmaps = "wayfind_roadmaps"
	idxItems    = "wayfind_items"
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The client
// starts unhealthy if the initial connection fails; the health loop keeps
// retrying in the background.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

// indexSettings describes one Meilisearch index. The ownerId attribute is
// filterable on both indexes; search queries always filter on it.
type indexSettings struct {
	uid        string
	filterable []string
	searchable []string
}

var wayfindIndexes = []indexSettings{
	{
		uid:        idxRoadmaps,
		filterable: []string{"ownerId", "category"},
		searchable: []string{"name", "category", "description"},
	},
	{
		uid:        idxItems,
		filterable: []string{"ownerId", "roadmapId", "isFinished"},
		searchable: []string{"title", "description"},
	},
}

func (m *Meili) configureIndexes() {
	for _, settings := range wayfindIndexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        settings.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", settings.uid, err)
		}

		index := m.client.Index(settings.uid)
		filterable := make([]interface{}, len(settings.filterable))
		for i, attr := range settings.filterable {
			filterable[i] = attr
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", settings.uid, err)
		}
		searchable := settings.searchable
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", settings.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or a filtered subset) and merges results.
// Every sub-query carries the ownerId filter.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if strings.TrimSpace(q.OwnerID) == "" {
		return nil, 0, fmt.Errorf("search without owner")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	for _, settings := range wayfindIndexes {
		rtyp := indexToResultType(settings.uid)
		if q.FilterType != "" && q.FilterType != rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              settings.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
			Filter:                []string{fmt.Sprintf("ownerId = %q", q.OwnerID)},
		})
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxRoadmaps:
		return ResultRoadmap
	case idxItems:
		return ResultItem
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.RoadmapID = decodeString(hit, "roadmapId")

	switch rtyp {
	case ResultRoadmap:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
		r.Category = decodeString(hit, "category")
		r.RoadmapID = r.ID // roadmap's own ID
	case ResultItem:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexRoadmap adds or updates a roadmap in the search index.
func (m *Meili) IndexRoadmap(r RoadmapRecord) error {
	_, err := m.client.Index(idxRoadmaps).AddDocuments([]RoadmapRecord{r}, nil)
	return err
}

// IndexItem adds or updates an item in the search index.
func (m *Meili) IndexItem(i ItemRecord) error {
	_, err := m.client.Index(idxItems).AddDocuments([]ItemRecord{i}, nil)
	return err
}

// DeleteRoadmap removes a roadmap from the search index.
func (m *Meili) DeleteRoadmap(id string) error {
	_, err := m.client.Index(idxRoadmaps).DeleteDocument(id, nil)
	return err
}

// DeleteItem removes an item from the search index.
func (m *Meili) DeleteItem(id string) error {
	_, err := m.client.Index(idxItems).DeleteDocument(id, nil)
	return err
}

// DeleteRoadmapItems removes every indexed item of one roadmap in a single
// filter delete, so items created while a roadmap delete is in flight
// cannot linger in the index.
func (m *Meili) DeleteRoadmapItems(roadmapID string) error {
	_, err := m.client.Index(idxItems).DeleteDocumentsByFilter(fmt.Sprintf("roadmapId = %q", roadmapID), nil)
	return err
}

// IndexRoadmaps bulk-indexes roadmaps.
func (m *Meili) IndexRoadmaps(roadmaps []RoadmapRecord) error {
	if len(roadmaps) == 0 {
		return nil
	}
	_, err := m.client.Index(idxRoadmaps).AddDocuments(roadmaps, nil)
	return err
}

// IndexItems bulk-indexes items.
func (m *Meili) IndexItems(items []ItemRecord) error {
	if len(items) == 0 {
		return nil
	}
	_, err := m.client.Index(idxItems).AddDocuments(items, nil)
	return err
}
