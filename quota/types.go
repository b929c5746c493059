package quota

// Game keys for quota records
const (
	GameSaw   = "saw"
	GameMines = "mines"
	GameDaily = "daily_spin"
)

// Record counts free plays used by one user in one game on one day.
// A missing record behaves as a fresh one.
type Record struct {
	UserID       string `json:"user_id"`
	Game         string `json:"game"`
	PlaysUsed    int    `json:"plays_used"`
	LastPlayDate string `json:"last_play_date"`
}
