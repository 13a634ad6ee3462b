package domain

type LocationStats struct {
	Total       int64 `json:"total"`
	Plants      int64 `json:"plants"`
	Litter      int64 `json:"litter"`
	SyncedToday int64 `json:"synced_today"`
}

type ImportResult struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}
