package testsubs

import (
	"context"
	"fmt"
	"log"
	"math"
)

// verifyResults checks the leaderboard against what the tool observed:
// one row per team, sorted best first, each row carrying the maximum
// score the team was ever told it achieved.
func verifyResults(ctx context.Context, config *Config, best map[string]float64, rankings, leaderboard []Entry) error {
	log.Println("🔍 Verifying results...")

	if len(rankings) == 0 {
		return fmt.Errorf("no rankings to verify")
	}

	// Every /rank row must carry the team's best observed score.
	mismatches := 0
	for _, entry := range rankings {
		want, ok := best[entry.Name]
		if !ok {
			mismatches++
			log.Printf("⚠️  Rank row for unknown team %s", entry.Name)
			continue
		}
		if math.Abs(entry.Score-want) > ScoreEpsilon {
			mismatches++
			log.Printf("⚠️  %s holds %.6f on the board, best accepted score was %.6f",
				entry.Name, entry.Score, want)
		}
	}
	if mismatches > 0 {
		return fmt.Errorf("%d teams hold a score other than their best", mismatches)
	}
	log.Println("✅ Best-score-per-team verified")

	// Verify leaderboard consistency if we have leaderboard data
	if len(leaderboard) > 0 {
		if err := verifyLeaderboardConsistency(rankings, leaderboard); err != nil {
			return fmt.Errorf("leaderboard consistency: %w", err)
		}
		log.Println("✅ Leaderboard consistency verified")
	}

	// Display top performers
	displayTopPerformers(sortEntries(rankings), leaderboard, config.Verbose)

	log.Println("✅ Result verification completed")
	return nil
}

// verifyLeaderboardConsistency checks ordering and that the board's top
// entry matches the best-ranked team.
func verifyLeaderboardConsistency(rankings, leaderboard []Entry) error {
	if len(leaderboard) == 0 {
		return fmt.Errorf("empty leaderboard")
	}

	sortedRankings := sortEntries(rankings)

	// Check if top entry in leaderboard matches the best ranked team.
	topRanking := sortedRankings[0]
	topLeaderboard := leaderboard[0]

	if math.Abs(topRanking.Score-topLeaderboard.Score) > ScoreEpsilon {
		return fmt.Errorf("top leaderboard score (%.6f) does not match best ranked score (%.6f)",
			topLeaderboard.Score, topRanking.Score)
	}

	// Check if leaderboard is properly sorted with contiguous ranks.
	for i := 1; i < len(leaderboard); i++ {
		if leaderboard[i].Score > leaderboard[i-1].Score {
			return fmt.Errorf("leaderboard not properly sorted: entry %d has higher score than entry %d",
				i, i-1)
		}
	}
	for i, entry := range leaderboard {
		if entry.Rank != i+1 {
			return fmt.Errorf("leaderboard rank gap: position %d carries rank %d", i+1, entry.Rank)
		}
	}

	// No team may appear twice.
	seen := make(map[string]bool, len(leaderboard))
	for _, entry := range leaderboard {
		if seen[entry.Name] {
			return fmt.Errorf("team %s appears more than once on the board", entry.Name)
		}
		seen[entry.Name] = true
	}

	return nil
}

// displayTopPerformers shows the top performers from rankings and leaderboard.
func displayTopPerformers(sortedRankings, leaderboard []Entry, verbose bool) {
	topN := 10
	if len(sortedRankings) < topN {
		topN = len(sortedRankings)
	}

	log.Printf("🏆 Top %d teams from rank queries:", topN)
	for i := 0; i < topN; i++ {
		entry := sortedRankings[i]
		log.Printf("   %d. %s - Score: %.4f", i+1, entry.Name, entry.Score)
	}

	if len(leaderboard) > 0 {
		leaderboardTopN := topN
		if len(leaderboard) < leaderboardTopN {
			leaderboardTopN = len(leaderboard)
		}

		log.Printf("🥇 Top %d teams from leaderboard:", leaderboardTopN)
		for i := 0; i < leaderboardTopN; i++ {
			entry := leaderboard[i]
			log.Printf("   %d. %s - Score: %.4f", i+1, entry.Name, entry.Score)
		}
	}

	if verbose {
		// Show some statistics
		if len(sortedRankings) > 0 {
			avgScore := calculateAverageScore(sortedRankings)
			maxScore := sortedRankings[0].Score
			minScore := sortedRankings[len(sortedRankings)-1].Score

			log.Printf(`📊 Score statistics:
   Average: %.4f
   Maximum: %.4f
   Minimum: %.4f
`, avgScore, maxScore, minScore)
		}
	}
}

// calculateAverageScore calculates the average score from rankings.
func calculateAverageScore(rankings []Entry) float64 {
	if len(rankings) == 0 {
		return 0
	}

	sum := 0.0
	for _, entry := range rankings {
		sum += entry.Score
	}

	return sum / float64(len(rankings))
}
