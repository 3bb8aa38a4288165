// Package tool defines the closed set of tools the model may call and
// dispatches assembled tool calls to their handlers.
package tool

import (
	"errors"
	"fmt"
)

// ErrUnknownTool indicates a tool name outside the closed set.
var ErrUnknownTool = errors.New("unknown tool")

// Kind identifies one tool. The set is closed: the dispatcher switches over
// Kind and a name that fails to parse is rejected before any handler runs.
type Kind int

const (
	KindSearchProduct Kind = iota
	KindReviewsByEmbedding
	KindGetUsers
	KindGetUser
	KindSetUserRole
	KindDeleteUser
	KindHeatmapReport
)

// Wire names of the tools, as declared to the model.
const (
	NameSearchProduct      = "search_product"
	NameReviewsByEmbedding = "get_reviews_by_embedding"
	NameGetUsers           = "get_users"
	NameGetUser            = "get_user"
	NameSetUserRole        = "set_user_role"
	NameDeleteUser         = "delete_user"
	NameHeatmapReport      = "heatmap_report"
)

var kindNames = map[Kind]string{
	KindSearchProduct:      NameSearchProduct,
	KindReviewsByEmbedding: NameReviewsByEmbedding,
	KindGetUsers:           NameGetUsers,
	KindGetUser:            NameGetUser,
	KindSetUserRole:        NameSetUserRole,
	KindDeleteUser:         NameDeleteUser,
	KindHeatmapReport:      NameHeatmapReport,
}

var namesToKind = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

// ParseKind maps a wire name to its Kind.
func ParseKind(name string) (Kind, error) {
	k, ok := namesToKind[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return k, nil
}

// String returns the wire name.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Privileged reports whether the tool requires an administrator session.
func (k Kind) Privileged() bool {
	switch k {
	case KindGetUsers, KindGetUser, KindSetUserRole, KindDeleteUser, KindHeatmapReport:
		return true
	default:
		return false
	}
}
