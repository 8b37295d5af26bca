package domain

// QuerySelection names one target for a fan-out run: which registered
// server, and which database on it.
type QuerySelection struct {
	ServerID   int `json:"serverId"`
	DatabaseID int `json:"databaseId"`
}

// QueryRequest is the payload for POST /query/execute and /query/export.
// UserID is the credential owner the run resolves servers for; a non-super
// user may only pass their own ID.
type QueryRequest struct {
	Query      string           `json:"query"`
	Selections []QuerySelection `json:"serverDatabaseSelections"`
	UserID     int              `json:"userId"`
}

// Column describes one result column. Metabase sends more fields; only the
// ones the dashboard renders are kept.
type Column struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	BaseType    string `json:"base_type,omitempty"`
}

// ResultPayload is a normalized tabular result. Cell values keep the remote
// source's native JSON types; null cells stay nil, distinct from "".
type ResultPayload struct {
	Cols []Column `json:"cols"`
	Rows [][]any  `json:"rows"`
}

// QueryResultEntry is one server's terminal outcome within a fan-out run.
// Exactly one of Data and Error is set. Entries are created once and never
// mutated.
type QueryResultEntry struct {
	ServerID  int            `json:"serverId"`
	ServerURL string         `json:"serverUrl"`
	Data      *ResultPayload `json:"data"`
	Error     string         `json:"error,omitempty"`
}

// DatabaseInfo is one database listed by a remote server.
type DatabaseInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Engine string `json:"engine,omitempty"`
}
