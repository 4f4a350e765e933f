// Package domain defines the business logic for the points ledger.
package domain

import "time"

// Kind identifies a point-earning activity type. The set is fixed; callers
// never invent kinds at runtime.
type Kind string

const (
	KindCreateRecipe            Kind = "create_recipe"
	KindTryRecipe               Kind = "try_recipe"
	KindFavoriteRecipe          Kind = "favorite_recipe"
	KindLikeRecipe              Kind = "like_recipe"
	KindShareRecipe             Kind = "share_recipe"
	KindCompleteProfile         Kind = "complete_profile"
	KindAddComment              Kind = "add_comment"
	KindDailyCheckin            Kind = "daily_checkin"
	KindCompleteSurvey          Kind = "complete_survey"
	KindRecipeLikedByOthers     Kind = "recipe_liked_by_others"
	KindRecipeFavoritedByOthers Kind = "recipe_favorited_by_others"
	KindRecipeTriedByOthers     Kind = "recipe_tried_by_others"
)

// Rule fixes the points a kind is worth. DailyLimit is display metadata
// except for daily_checkin, whose cap is enforced at the ledger layer; zero
// means unlimited.
type Rule struct {
	Points     int
	DailyLimit int
}

var rules = map[Kind]Rule{
	KindCreateRecipe:            {Points: 50},
	KindTryRecipe:               {Points: 20, DailyLimit: 3},
	KindFavoriteRecipe:          {Points: 5, DailyLimit: 10},
	KindLikeRecipe:              {Points: 5, DailyLimit: 10},
	KindShareRecipe:             {Points: 10, DailyLimit: 5},
	KindCompleteProfile:         {Points: 25, DailyLimit: 1},
	KindAddComment:              {Points: 10, DailyLimit: 5},
	KindDailyCheckin:            {Points: 10, DailyLimit: 1},
	KindCompleteSurvey:          {Points: 30},
	KindRecipeLikedByOthers:     {Points: 5},
	KindRecipeFavoritedByOthers: {Points: 5},
	KindRecipeTriedByOthers:     {Points: 10},
}

// RuleFor looks up the points rule for a kind.
func RuleFor(kind Kind) (Rule, bool) {
	rule, ok := rules[kind]
	return rule, ok
}

// Activity represents one recorded point-earning event. The ID is provisional
// when minted on-device; the remote store assigns its own row id, so
// cross-store identity is decided by Fingerprint, never by ID.
type Activity struct {
	ID          string
	Kind        Kind
	Points      int
	Description string
	SubjectRef  string
	OccurredAt  time.Time
}
