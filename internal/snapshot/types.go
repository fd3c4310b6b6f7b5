// Package snapshot holds the typed working copy of a family tree (metadata,
// node-set and edge-set) together with its change detection and the JSON
// codec used at the storage boundary.
package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNodeExists  = errors.New("node already present")
	ErrNodeMissing = errors.New("node not present")
	ErrEdgeExists  = errors.New("edge already present")
	ErrEdgeMissing = errors.New("edge not present")
	ErrInvalidEdge = errors.New("invalid edge")
	// ErrCodec marks a malformed persisted payload.
	ErrCodec = errors.New("snapshot codec")
)

type RelationType string

const (
	RelationParent      RelationType = "PARENT"
	RelationChild       RelationType = "CHILD"
	RelationSpouse      RelationType = "SPOUSE"
	RelationSibling     RelationType = "SIBLING"
	RelationGrandparent RelationType = "GRANDPARENT"
	RelationGrandchild  RelationType = "GRANDCHILD"
	RelationUncleAunt   RelationType = "UNCLE_AUNT"
	RelationNephewNiece RelationType = "NEPHEW_NIECE"
)

var relationTypes = map[RelationType]struct{}{
	RelationParent:      {},
	RelationChild:       {},
	RelationSpouse:      {},
	RelationSibling:     {},
	RelationGrandparent: {},
	RelationGrandchild:  {},
	RelationUncleAunt:   {},
	RelationNephewNiece: {},
}

// ParseRelationType accepts any casing and surrounding whitespace.
func ParseRelationType(value string) (RelationType, error) {
	candidate := RelationType(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := relationTypes[candidate]; !ok {
		return "", fmt.Errorf("unknown relation type %q", value)
	}
	return candidate, nil
}

func (t RelationType) Valid() bool {
	_, ok := relationTypes[t]
	return ok
}

// NodeSummary is the draft's copy of a memorial. Dates use the YYYY-MM-DD form.
type NodeSummary struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	BirthDate   string `json:"birthDate,omitempty"`
	DeathDate   string `json:"deathDate,omitempty"`
	Biography   string `json:"biography,omitempty"`
	PhotoRef    string `json:"photoRef,omitempty"`
	IsPublic    bool   `json:"isPublic"`
}

// EdgeRef identifies an edge inside a draft. It is either an existing
// canonical relation id or a proposal token for an edge that has not been
// persisted yet.
type EdgeRef struct {
	id    int64
	token string
}

const proposedPrefix = "new:"

func Existing(id int64) EdgeRef {
	return EdgeRef{id: id}
}

func Proposed(token string) EdgeRef {
	return EdgeRef{token: token}
}

// NewProposed returns a proposal ref with a fresh random token.
func NewProposed() EdgeRef {
	return Proposed(uuid.NewString())
}

// legacyProposed maps the negative sentinel ids used by older payloads onto
// proposal tokens so they never reach canonical storage as ids.
func legacyProposed(id int64) EdgeRef {
	return Proposed("legacy" + strconv.FormatInt(id, 10))
}

func (r EdgeRef) IsProposed() bool {
	return r.token != ""
}

func (r EdgeRef) IsZero() bool {
	return r.id == 0 && r.token == ""
}

// CanonicalID returns the relation id for existing refs.
func (r EdgeRef) CanonicalID() (int64, bool) {
	if r.IsProposed() || r.id <= 0 {
		return 0, false
	}
	return r.id, true
}

func (r EdgeRef) Token() string {
	return r.token
}

func (r EdgeRef) String() string {
	if r.IsProposed() {
		return proposedPrefix + r.token
	}
	return strconv.FormatInt(r.id, 10)
}

// ParseEdgeRef is the inverse of String. Negative integers are read as
// legacy proposal ids.
func ParseEdgeRef(value string) (EdgeRef, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, proposedPrefix) {
		token := strings.TrimPrefix(value, proposedPrefix)
		if token == "" {
			return EdgeRef{}, fmt.Errorf("empty proposal token")
		}
		return Proposed(token), nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return EdgeRef{}, fmt.Errorf("invalid edge ref %q", value)
	}
	switch {
	case id > 0:
		return Existing(id), nil
	case id < 0:
		return legacyProposed(id), nil
	default:
		return EdgeRef{}, fmt.Errorf("invalid edge ref %q", value)
	}
}

// EdgeSummary is a typed relation between two nodes of one tree.
type EdgeSummary struct {
	Ref      EdgeRef
	TreeID   int64
	SourceID int64
	TargetID int64
	Type     RelationType
}

func (e EdgeSummary) validate() error {
	if e.Ref.IsZero() {
		return fmt.Errorf("%w: missing id", ErrInvalidEdge)
	}
	if e.SourceID <= 0 || e.TargetID <= 0 {
		return fmt.Errorf("%w: endpoints must be canonical node ids", ErrInvalidEdge)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: relation type %q", ErrInvalidEdge, e.Type)
	}
	return nil
}

func (e EdgeSummary) touches(nodeID int64) bool {
	return e.SourceID == nodeID || e.TargetID == nodeID
}

// Meta is the tree metadata a draft may change.
type Meta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// Snapshot is one side of a draft: either the working copy or the original
// baseline.
type Snapshot struct {
	Meta  Meta
	Nodes []NodeSummary
	Edges []EdgeSummary
}
