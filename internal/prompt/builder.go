// Package prompt renders the coaching instructions sent with every analysis.
// Build is pure: the same Input always yields the same text.
package prompt

import (
	"fmt"
	"strings"

	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/pkg/models"
)

// MaxHistory is the number of prior analyses included for comparison
const MaxHistory = 3

// Directive phrases. Exported so callers and tests can check which
// temporal branch a prompt took.
const (
	DirectiveFocus        = "**FOCUS**"
	DirectiveDistribution = "**DISTRIBUTION**"
	DirectiveFullVideo    = "**FULL VIDEO ANALYSIS**"
	DirectiveNoBias       = "**NO BIAS**"
	DirectiveProveCover   = "**PROVE COVERAGE**"
	DirectiveFatigue      = "**FATIGUE CHECK**"
)

// Input holds everything the prompt depends on
type Input struct {
	PlayerDescription string
	History           []models.AnalysisSummary // newest first
	TimeRange         *models.TimeRange
	Duration          float64 // seconds, 0 when unknown
}

// IsSegment reports whether the input asks for a sub-range rather than the whole video
func (in Input) IsSegment() bool {
	tr := in.TimeRange
	if tr == nil {
		return false
	}
	return tr.Start > 0 || (tr.End != nil && *tr.End > 0 && *tr.End < in.Duration)
}

// Build renders the full prompt
func Build(in Input) string {
	var b strings.Builder

	b.WriteString("You are an expert badminton coach analyzing gameplay footage. ")
	b.WriteString("Your task is to provide EXTREMELY DETAILED, actionable feedback for a club or intermediate level player.\n")
	b.WriteString("You must break down your analysis into specific sub-categories to ensure comprehensive coverage.\n\n")

	writeTemporal(&b, in)

	b.WriteString("## Player to Analyse\n")
	b.WriteString(strings.TrimSpace(in.PlayerDescription))
	b.WriteString("\n\n")

	writeHistory(&b, in.History)
	writeRubric(&b)
	writeCalibration(&b)
	writeResponseFormat(&b)

	return b.String()
}

func writeTemporal(b *strings.Builder, in Input) {
	length := "of unknown duration"
	end := "the end"
	if in.Duration > 0 {
		length = timeutil.FormatClock(in.Duration)
		end = length
	}

	b.WriteString("## MANDATORY TEMPORAL COVERAGE\n")
	fmt.Fprintf(b, "This video is %s long.\n\n", length)

	if in.IsSegment() {
		segEnd := "end of video"
		if in.TimeRange.End != nil && *in.TimeRange.End > 0 {
			segEnd = timeutil.FormatClock(*in.TimeRange.End)
		}
		fmt.Fprintf(b, "- %s: You are analyzing a specific segment from %s to %s.\n",
			DirectiveFocus, timeutil.FormatClock(in.TimeRange.Start), segEnd)
		fmt.Fprintf(b, "- %s: You MUST distribute your observations evenly across the beginning, middle, and end of THIS SPECIFIC SEGMENT.\n\n",
			DirectiveDistribution)
		return
	}

	fmt.Fprintf(b, "- %s: You MUST analyse the entire duration from 0:00 to %s.\n", DirectiveFullVideo, end)
	fmt.Fprintf(b, "- %s: Do NOT focus only on the first few minutes. Scrutinize the middle and final stages of the video with equal depth.\n", DirectiveNoBias)
	fmt.Fprintf(b, "- %s: You MUST include multiple observations with timestamps from the FINAL 20%% of the video duration.\n", DirectiveProveCover)
	fmt.Fprintf(b, "- %s: Specifically analyse if the player's technique, footwork speed, or shot selection quality changes (e.g., due to fatigue) between the start and the end of the video.\n\n", DirectiveFatigue)
}

func writeHistory(b *strings.Builder, history []models.AnalysisSummary) {
	if len(history) == 0 {
		return
	}
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}

	b.WriteString("## Previous Analysis History\n")
	fmt.Fprintf(b, "The player has %d previous analyses. Here are the key findings:\n", len(history))
	for i, h := range history {
		fmt.Fprintf(b, "\n### Analysis %d (%s)\n", i+1, h.Date.Format("Jan 2, 2006"))
		fmt.Fprintf(b, "- Technical: %s/10\n", scoreOrNA(h.Technical))
		fmt.Fprintf(b, "- Tactical: %s/10\n", scoreOrNA(h.Tactical))
		fmt.Fprintf(b, "- Physicality: %s/10\n", scoreOrNA(h.Physicality))
	}
	b.WriteString("\nWhen analyzing, compare current performance to these past observations and note any improvements or regressions.\n\n")
}

func scoreOrNA(v *float64) string {
	if v == nil || *v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *v)
}

func writeRubric(b *strings.Builder) {
	b.WriteString("## Analysis Required\n")
	b.WriteString("Analyse the identified player's performance across these 3 pillars and their sub-dimensions:\n")
	for i, p := range Pillars {
		fmt.Fprintf(b, "\n### %d. %s\n", i+1, p.Title)
		for _, d := range p.Dimensions {
			fmt.Fprintf(b, "- **%s:** %s\n", d.Label, d.Description)
		}
	}
	b.WriteString("\n")
}

func writeCalibration(b *strings.Builder) {
	b.WriteString("## Scoring Calibration\n")
	b.WriteString("Score every sub-category against these tiers:\n\n")
	b.WriteString("| Score | Tier | Technical | Tactical | Physicality |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, t := range Calibration {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n", t.Band, t.Name, t.Technical, t.Tactical, t.Physicality)
	}

	b.WriteString("\n## Overall Score\n")
	fmt.Fprintf(b, "Compute overallScore as %.1f*technical + %.1f*tactical + %.1f*physicality, ",
		WeightTechnical, WeightTactical, WeightPhysicality)
	b.WriteString("where each pillar value is the mean of its sub-category scores. ")
	fmt.Fprintf(b, "You may adjust the result by at most ±%.1f to reflect overall match impact. Round to one decimal.\n\n", OverallAdjustment)
}

func writeResponseFormat(b *strings.Builder) {
	b.WriteString("## Response Format\n")
	b.WriteString("Respond in valid JSON format with this strict structure.\n\n")

	b.WriteString("**CRITICAL: BALANCED ANALYSIS**\n")
	b.WriteString("For EACH sub-category (e.g., \"Racket Skills\"), you MUST provide:\n")
	b.WriteString("1.  **Observations**: 2-3 timestamped observations of what the player actually did.\n")
	b.WriteString("2.  **Successes**: 2-3 specific points on what the player did well (timestamps optional).\n")
	b.WriteString("3.  **Improvements**: 2-3 specific actionable tips on what to do better (timestamps optional).\n")
	b.WriteString("4.  **Balance**: Do NOT output 5 observations and only 1 success. Keep the counts roughly equal. ")
	b.WriteString("Even for a strong player, find minor improvements. For a weak player, acknowledge basic successes.\n\n")

	b.WriteString("**CRITICAL: CITATIONS & FORMATTING**\n")
	b.WriteString("1.  **Observations**: MUST include a timestamp at the end of the string in the format [MM:SS]. Do NOT prefix with text like \"obs\".\n")
	b.WriteString("    - Correct: \"Forehand clear reached the back line with good height [02:30]\"\n")
	b.WriteString("    - Incorrect: \"obs [02:30] Forehand clear...\"\n")
	b.WriteString("2.  **Successes/Improvements**: Timestamps are allowed but NOT required.\n\n")

	writeSkeleton(b)
}

func writeSkeleton(b *strings.Builder) {
	b.WriteString("{\n")
	b.WriteString("  \"overallScore\": <number 1-10>,\n")
	b.WriteString("  \"confidence\": {\n")
	b.WriteString("    \"score\": \"High\" | \"Medium\" | \"Low\",\n")
	b.WriteString("    \"reason\": \"Brief explanation\"\n")
	b.WriteString("  },\n")

	for _, p := range Pillars {
		fmt.Fprintf(b, "  %q: {\n", p.Key)
		for i, d := range p.Dimensions {
			sep := ","
			if i == len(p.Dimensions)-1 {
				sep = ""
			}
			if p.Key == models.PillarTechnical && i == 0 {
				fmt.Fprintf(b, "    %q: {\n", d.Key)
				b.WriteString("       \"score\": <1-10>,\n")
				b.WriteString("       \"observations\": [\"Specific observation description [MM:SS]\", \"Another observation [MM:SS]\"],\n")
				b.WriteString("       \"successes\": [\"Good wrist snap on smashes\", \"Consistent backhand clears\"],\n")
				b.WriteString("       \"improvements\": [\"Use more finger power for net shots\", \"Relax grip when defending\"]\n")
				fmt.Fprintf(b, "    }%s\n", sep)
				continue
			}
			fmt.Fprintf(b, "    %q: { \"score\": <1-10>, \"observations\": [\"...\"], \"successes\": [\"...\"], \"improvements\": [\"...\"] }%s\n", d.Key, sep)
		}
		b.WriteString("  },\n")
	}

	b.WriteString("  \"progressNotes\": \"comparison to previous analyses...\"\n")
	b.WriteString("}\n")
}
