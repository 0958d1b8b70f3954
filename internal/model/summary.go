package model

// Stat keys used in Summary.Stats.
const (
	StatFetched       = "fetched"
	StatBlocked       = "blocked"
	StatBlockedWAF    = "blocked_waf"
	StatError         = "error"
	StatIngestedLocal = "ingested_local"
	StatCacheHit      = "cache_hit"
)

// Summary is the run summary written to manifest.json when a crawl ends.
type Summary struct {
	RunID           string         `json:"run_id"`
	StartedAt       string         `json:"started_at"`
	FinishedAt      string         `json:"finished_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Config          SummaryConfig  `json:"config"`
	Stats           map[string]int `json:"stats"`
	RemainingQueue  int            `json:"remaining_queue"`
	Interrupted     bool           `json:"interrupted,omitempty"`
}

// SummaryConfig echoes the crawl parameters that produced a run.
type SummaryConfig struct {
	OutDir            string   `json:"out_dir"`
	AllowHostSuffixes []string `json:"allow_host_suffixes"`
	FollowOffsite     bool     `json:"follow_offsite"`
	MaxPages          int      `json:"max_pages"`
	MaxDepth          int      `json:"max_depth"`
	PerHostDelayS     float64  `json:"per_host_delay_s"`
	RespectRobots     bool     `json:"respect_robots"`
	RefreshCache      bool     `json:"refresh_cache"`
}

// Stat returns the counter for key, or zero.
func (s *Summary) Stat(key string) int {
	if s == nil || s.Stats == nil {
		return 0
	}
	return s.Stats[key]
}

// WAFBlockedOnly reports whether the run fetched nothing because every
// attempt hit a bot-protection challenge.
func (s *Summary) WAFBlockedOnly() bool {
	return s.Stat(StatFetched) == 0 && s.Stat(StatBlockedWAF) > 0
}
