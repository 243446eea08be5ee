package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultRoadmap ResultType = "roadmap"
	ResultItem    ResultType = "item"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	RoadmapID string     `json:"roadmapId"`
	Category  string     `json:"category,omitempty"`
}

// Query describes a search request. OwnerID is mandatory: results never
// cross owner boundaries.
type Query struct {
	OwnerID    string
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// RoadmapRecord is the data we index for a roadmap.
type RoadmapRecord struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Slug        string `json:"slug"`
}

// ItemRecord is the data we index for an item.
type ItemRecord struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	RoadmapID   string `json:"roadmapId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsFinished  bool   `json:"isFinished"`
}
