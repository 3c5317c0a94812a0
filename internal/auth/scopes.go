package auth

// Known OAuth scopes used by the WorkLens API.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
	ScopeWorksheetsWrite = "worksheets:write"
	ScopeWorksheetsRead  = "worksheets:read"
)
