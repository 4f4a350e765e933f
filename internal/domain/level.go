package domain

// levelThresholds holds the cumulative points required to reach each level,
// strictly increasing, with level 1 starting at zero so every non-negative
// total maps to a level.
var levelThresholds = []int{0, 100, 250, 500, 1000, 2000, 3500, 5000, 7500, 10000}

// MaxLevel is the highest level the table defines.
func MaxLevel() int { return len(levelThresholds) }

// LevelFor returns the largest level whose threshold does not exceed points.
// Scanning from the top is correct because the thresholds are strictly
// increasing.
func LevelFor(points int) int {
	for i := len(levelThresholds) - 1; i >= 0; i-- {
		if points >= levelThresholds[i] {
			return i + 1
		}
	}
	return 1
}

// PointsToNextLevel returns how many points remain until the next threshold,
// or zero when level is already the highest defined. Never negative as long
// as level was derived from the same points via LevelFor.
func PointsToNextLevel(points, level int) int {
	if level >= len(levelThresholds) {
		return 0
	}
	return levelThresholds[level] - points
}
