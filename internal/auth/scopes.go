package auth

// Known OAuth scopes used by the points agent.
const (
	ScopePointsWrite = "points:write"
	ScopePointsRead  = "points:read"
)
