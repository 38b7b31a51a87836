package balloon

import "sort"

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	Player    string `json:"player"`
	HighScore uint64 `json:"highScore"`
}

// Leaderboard returns the topK registered players by high score, highest first.
// Ties keep registration order. topK <= 0 returns every player.
func (e *Engine) Leaderboard(topK int) []LeaderboardEntry {
	e.mu.RLock()
	sessions := make([]*session, len(e.order))
	for i, p := range e.order {
		sessions[i] = e.sessions[p]
	}
	e.mu.RUnlock()

	entries := make([]LeaderboardEntry, len(sessions))
	for i, s := range sessions {
		s.mu.Lock()
		entries[i] = LeaderboardEntry{Player: s.player, HighScore: s.highScore}
		s.mu.Unlock()
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].HighScore > entries[j].HighScore
	})
	if topK > 0 && topK < len(entries) {
		entries = entries[:topK]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
