package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTree     ResultType = "tree"
	ResultMemorial ResultType = "memorial"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      int64      `json:"id"`
	TreeID  int64      `json:"treeId"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
}

// Query describes a search request. Only public entries and trees owned by
// ViewerID are matched.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	ViewerID   int64
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// TreeRecord is the data we index for a family tree.
type TreeRecord struct {
	ID          int64  `json:"id"`
	OwnerID     int64  `json:"ownerId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// MemorialRecord is the data we index for a memorial attached to a tree.
// IsPublic is true only when both the memorial and its tree are public.
type MemorialRecord struct {
	ID          int64  `json:"id"`
	TreeID      int64  `json:"treeId"`
	OwnerID     int64  `json:"ownerId"`
	DisplayName string `json:"displayName"`
	Biography   string `json:"biography"`
	IsPublic    bool   `json:"isPublic"`
}

// TreeDocument is everything that changes in the index when a tree is
// rewritten: the tree itself, its current memorials and the memorials that
// left it.
type TreeDocument struct {
	Tree      TreeRecord
	Memorials []MemorialRecord
	Detached  []int64
}
