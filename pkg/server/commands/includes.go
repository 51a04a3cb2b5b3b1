package commands

import (
	"github.com/patrongate/patrongate/internal/graph"
)

// Include names accepted on composite requests. Each maps to one or more
// fetch tasks hanging off the root user fetch.
const (
	IncludeGroups        = "groups"
	IncludeCredentials   = "credentials"
	IncludePermissions   = "perms"
	IncludeProxiesFor    = "proxiesfor"
	IncludeServicePoints = "servicepoints"
)

// AllIncludes is the expansion applied when the client does not narrow
// the include list.
var AllIncludes = []string{
	IncludeGroups,
	IncludeCredentials,
	IncludePermissions,
	IncludeProxiesFor,
	IncludeServicePoints,
}

// optionalCollection is the policy shared by the non-root fetches of a
// composite: their absence leaves the slot empty, it does not fail the
// request.
var optionalCollection = graph.Policy{Cardinality: graph.OptionalMany, TotalField: "totalRecords"}

// includeTasks builds the dependent fetch tasks for one include. idExpr
// addresses the user id inside the root fetch's body ("id" for a direct
// lookup, "users.0.id" for a query root); groupExpr addresses the patron
// group reference the same way.
func includeTasks(include, idExpr, groupExpr string) []*graph.Task {
	switch include {
	case IncludeGroups:
		return []*graph.Task{{
			ID:           taskPatronGroup,
			PathTemplate: "/groups/{" + groupExpr + "}",
			DependsOn:    taskUser,
			Policy:       graph.Policy{Cardinality: graph.OptionalMany},
		}}
	case IncludeCredentials:
		return []*graph.Task{{
			ID:           taskCredentials,
			PathTemplate: "/authn/credentials?query=userId=={" + idExpr + "}",
			DependsOn:    taskUser,
			Policy:       optionalCollection,
		}}
	case IncludePermissions:
		return []*graph.Task{{
			ID:           taskPermissions,
			PathTemplate: "/perms/users?query=userId=={" + idExpr + "}",
			DependsOn:    taskUser,
			Policy:       optionalCollection,
		}}
	case IncludeProxiesFor:
		return []*graph.Task{{
			ID:           taskProxiesFor,
			PathTemplate: "/proxiesfor?query=proxyUserId=={" + idExpr + "}",
			DependsOn:    taskUser,
			Policy:       optionalCollection,
		}}
	case IncludeServicePoints:
		return []*graph.Task{
			{
				ID:           taskServicePointsUser,
				PathTemplate: "/service-points-users?query=userId=={" + idExpr + "}",
				DependsOn:    taskUser,
				Policy:       optionalCollection,
			},
			{
				ID:           taskServicePoints,
				DependsOn:    taskServicePointsUser,
				Policy:       optionalCollection,
				BuildPath:    servicePointsPath,
			},
		}
	default:
		return nil
	}
}
