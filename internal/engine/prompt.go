package engine

import (
	"fmt"
	"strings"

	"github.com/badbeats/pickgen/internal/clients/news"
	"github.com/badbeats/pickgen/internal/models"
)

const systemPrompt = "You are an NBA analyst. Answer only with a JSON object."

const maxNewsPerTeam = 3

// BuildPrompt renders gc as the user prompt. Missing slots are written as
// UNAVAILABLE so the model can discount them.
func BuildPrompt(gc *models.GameContext) string {
	g := gc.Game
	var b strings.Builder

	b.WriteString("Predict the winner of this game.\n")
	fmt.Fprintf(&b, "- Game ID: %s\n", g.ID)
	fmt.Fprintf(&b, "- Matchup: %s @ %s\n", g.AwayTeamName, g.HomeTeamName)
	fmt.Fprintf(&b, "- Date: %s\n\n", g.StartTime.UTC().Format("Monday, January 02, 2006 at 03:04 PM MST"))

	fmt.Fprintf(&b, "Home Team (%s) Stats:\n%s\n\n", g.HomeTeamName, formatStats(gc.Structured.HomeStats))
	fmt.Fprintf(&b, "Away Team (%s) Stats:\n%s\n\n", g.AwayTeamName, formatStats(gc.Structured.AwayStats))

	b.WriteString("Injuries:\n")
	fmt.Fprintf(&b, "- %s: %s\n", g.HomeTeamName, formatInjuries(gc.Unstructured.HomeInjuries))
	fmt.Fprintf(&b, "- %s: %s\n\n", g.AwayTeamName, formatInjuries(gc.Unstructured.AwayInjuries))

	b.WriteString("News:\n")
	fmt.Fprintf(&b, "- %s: %s\n", g.HomeTeamName, formatNews(gc.Unstructured.HomeNews))
	fmt.Fprintf(&b, "- %s: %s\n\n", g.AwayTeamName, formatNews(gc.Unstructured.AwayNews))

	b.WriteString(`Return a JSON object with:
- "pick": the team you expect to win (e.g. "Boston Celtics")
- "logic": one reasoning paragraph
- "confidence": a number between 0 and 1
`)
	return b.String()
}

func formatStats(s models.StatsSlot) string {
	if !s.Available {
		return models.Unavailable
	}
	if s.Stats == nil || s.Stats.GamesPlayed == 0 {
		return "No stats available."
	}
	return fmt.Sprintf("Points: %.1f, Rebounds: %.1f, Assists: %.1f (last %d games)",
		s.Stats.Points, s.Stats.Rebounds, s.Stats.Assists, s.Stats.GamesPlayed)
}

func formatInjuries(s models.InjurySlot) string {
	if !s.Available {
		return models.Unavailable
	}
	if len(s.Entries) == 0 {
		return "No injuries reported."
	}
	parts := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		status := e.Status
		if status == "" {
			status = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", e.Player, status))
	}
	return strings.Join(parts, "; ")
}

func formatNews(s models.NewsSlot) string {
	if !s.Available {
		return models.Unavailable
	}
	if len(s.Articles) == 0 {
		return "No recent news."
	}
	n := min(len(s.Articles), maxNewsPerTeam)
	parts := make([]string, 0, n)
	for _, a := range s.Articles[:n] {
		summary := news.Clean(a.Summary)
		if summary == "" {
			summary = "N/A"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", news.Clean(a.Title), summary))
	}
	return strings.Join(parts, "; ")
}
