package prompt

import "github.com/smashers-ai/smashers/pkg/models"

// Dimension is one scored sub-category within a pillar
type Dimension struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// PillarSpec groups the dimensions of one pillar
type PillarSpec struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	Dimensions []Dimension `json:"dimensions"`
}

// Tier is one row of the scoring calibration table
type Tier struct {
	Band        string `json:"band"`
	Name        string `json:"name"`
	Technical   string `json:"technical"`
	Tactical    string `json:"tactical"`
	Physicality string `json:"physicality"`
}

// Pillar weights for the overall score
const (
	WeightTechnical   = 0.4
	WeightTactical    = 0.4
	WeightPhysicality = 0.2

	// OverallAdjustment is the discretionary range the model may apply to the weighted score
	OverallAdjustment = 0.5
)

// Pillars is the coaching rubric. Keys must match the sub-category keys in pkg/models.
var Pillars = []PillarSpec{
	{
		Key:   models.PillarTechnical,
		Title: "Technical Skills",
		Dimensions: []Dimension{
			{"racketSkills", "Racket Skills", "quality of clear, drop, smash, drive, lift, net shot, push; spin control; ability to change pace and angle."},
			{"controlPrecision", "Control & Precision", "depth to back tramlines, width to sidelines, tightness at net, unforced error rate."},
			{"deceptionVariation", "Deception & Variation", "holds, slice, delayed hits, ability to disguise shots from same preparation."},
			{"footworkTechnique", "Footwork Technique", "efficiency of split-steps, chasses, lunging mechanics, recovery steps, balance."},
			{"strokeMechanics", "Stroke Mechanics", "core rotation, kinetic chain, pronation/supination, hitting point relative to body."},
		},
	},
	{
		Key:   models.PillarTactical,
		Title: "Tactical Skills",
		Dimensions: []Dimension{
			{"gameUnderstanding", "Game Understanding", "pattern recognition, exploiting opponent weaknesses, singles/doubles IQ."},
			{"shotSelection", "Shot Selection", "choices under pressure, percentage play vs high risk, adapting to court conditions."},
			{"rallyConstruction", "Rally Construction", "creating openings through placement/tempo vs rushing for winners."},
			{"readingAnticipation", "Reading & Anticipation", "reacting to opponent body language, intercepting, moving before shuttle is hit."},
			{"formations", "Formations (if doubles)", "rotational discipline, serving/receiving formations, coverage gaps."},
		},
	},
	{
		Key:   models.PillarPhysicality,
		Title: "Physicality",
		Dimensions: []Dimension{
			{"speedAgility", "Speed & Agility", "first-step explosiveness, change of direction, court coverage speed."},
			{"explosivePower", "Explosive Power", "jump height, smash power, acceleration."},
			{"endurance", "Endurance", "maintenance of quality movement/strokes late in game, recovery between rallies."},
			{"strengthStability", "Strength & Stability", "lunge stability, core strength, recovery power."},
			{"mobility", "Mobility", "reach flexibility, deep lunge capacity, overhead range of motion."},
			{"anthropometrics", "Anthropometrics", "utilization of height/reach or compensation for lack thereof."},
		},
	},
}

// Calibration maps score bands to skill tiers
var Calibration = []Tier{
	{
		Band:        "1-2",
		Name:        "Beginner",
		Technical:   "Basic grip/hit. Often misses shuttle. Limited stroke variety.",
		Tactical:    "No real strategy. Struggles with court positioning.",
		Physicality: "Low stamina. Slow reaction. Limited lunge range.",
	},
	{
		Band:        "3-4",
		Name:        "Novice",
		Technical:   "Consistent clears/serves. Basic drops. Technique is rigid or lacks power.",
		Tactical:    "Can sustain short rallies. Basic understanding of gaps.",
		Physicality: "Moderate court coverage. Gets tired during long rallies.",
	},
	{
		Band:        "5-6",
		Name:        "Intermediate",
		Technical:   "Reliable stroke mechanics. Developing net play and smashes.",
		Tactical:    "Intentional shot placement. Basic pattern recognition.",
		Physicality: "Good footwork efficiency. Maintains speed throughout a set.",
	},
	{
		Band:        "7-8",
		Name:        "Advanced",
		Technical:   "Strong power and precision. High-quality deceptive shots.",
		Tactical:    "Exploits opponent weaknesses. Strong anticipation.",
		Physicality: "Explosive first step. High endurance and recovery speed.",
	},
	{
		Band:        "9-10",
		Name:        "Professional",
		Technical:   "International level precision. Flawless footwork and racket speed.",
		Tactical:    "Master of rally construction. Near-perfect anticipation.",
		Physicality: "Elite athleticism. Extreme lunge stability and power.",
	},
}

// WeightedOverall applies the overall formula without the discretionary adjustment
func WeightedOverall(technical, tactical, physicality float64) float64 {
	return WeightTechnical*technical + WeightTactical*tactical + WeightPhysicality*physicality
}
