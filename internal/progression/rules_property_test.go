package progression

import (
	"testing"
	"time"

	"deepsafe/internal/model"

	"pgregory.net/rapid"
)

var testGeo = mapGeo{
	"lazio":  {"VT", "RI", "RM", "LT", "FR"},
	"triad":  {"A", "B", "C"},
	"empty":  {},
	"molise": {"CB", "IS"},
}

// TestLivesStayInBoundsProperty checks 0 <= lives <= maxLives for any
// sequence of decrement, add-heart and refill.
func TestLivesStayInBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxLives := rapid.IntRange(1, 10).Draw(t, "maxLives")
		p := model.Progress{Lives: rapid.IntRange(0, maxLives).Draw(t, "lives"), MaxLives: maxLives}
		now := time.Unix(1_700_000_000, 0)

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				p = DecrementLives(p, now)
			case 1:
				p, _ = AddHearts(p, rapid.IntRange(1, 20).Draw(t, "hearts"))
			case 2:
				p = RefillLives(p)
			case 3:
				now = now.Add(time.Duration(rapid.IntRange(0, 120).Draw(t, "minutes")) * time.Minute)
				p = RegenerateLives(p, now, 30*time.Minute)
			}
			if p.Lives < 0 || p.Lives > p.MaxLives {
				t.Fatalf("lives %d out of 0..%d", p.Lives, p.MaxLives)
			}
			if p.Lives == p.MaxLives && p.LastRefillAt != nil {
				t.Fatalf("full lives must not run a refill timer")
			}
		}
	})
}

// TestProvinceScoreMonotonicProperty checks best-score-wins and sticky
// completion over arbitrary result sequences.
func TestProvinceScoreMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := model.Progress{MaxLives: 5}
		best := 0
		completed := false

		n := rapid.IntRange(1, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			maxScore := rapid.IntRange(1, 20).Draw(t, "max")
			score := rapid.IntRange(0, maxScore).Draw(t, "score")
			done := rapid.Bool().Draw(t, "done")

			var err error
			p, err = MergeProvinceScore(p, "RM", score, maxScore, done)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			best = max(best, score)
			completed = completed || done

			got := p.ProvinceScores["RM"]
			if got.Score != best {
				t.Fatalf("score %d, want best %d", got.Score, best)
			}
			if got.IsCompleted != completed {
				t.Fatalf("completed %v, want %v", got.IsCompleted, completed)
			}
		}
	})
}

// TestUnlockProvinceIdempotentProperty checks the set never holds duplicates.
func TestUnlockProvinceIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := model.Progress{MaxLives: 5, UnlockedProvinces: model.ProvinceSet{"RM"}}
		ids := rapid.SliceOf(rapid.SampledFrom([]string{"RM", "MI", "NA", "TO"})).Draw(t, "ids")
		for _, id := range ids {
			p = UnlockProvince(p, id)
		}
		if err := p.UnlockedProvinces.Validate(); err != nil {
			t.Fatalf("invalid set: %v", err)
		}
		if !p.UnlockedProvinces.Has("RM") {
			t.Fatalf("starter province lost")
		}
	})
}

// TestAwardBadgesExactProperty checks that AwardBadges returns exactly the
// unearned badges whose condition holds on the input snapshot and never
// re-awards an earned one.
func TestAwardBadgesExactProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		catalog := []model.Badge{
			{ID: "xp-100", XPReward: 10, Condition: model.BadgeCondition{Kind: model.ConditionXPMilestone, Threshold: 100}},
			{ID: "xp-500", XPReward: 50, Condition: model.BadgeCondition{Kind: model.ConditionXPMilestone, Threshold: 500}},
			{ID: "streak-7", Condition: model.BadgeCondition{Kind: model.ConditionStreakMilestone, Threshold: 7}},
			{ID: "first", Condition: model.BadgeCondition{Kind: model.ConditionFirstMission}},
			{ID: "triad", Condition: model.BadgeCondition{Kind: model.ConditionRegionMaster, Region: "triad"}},
			{ID: "void", Condition: model.BadgeCondition{Kind: model.ConditionRegionMaster, Region: "empty"}},
		}

		p := model.Progress{
			XP:             rapid.Int64Range(0, 1000).Draw(t, "xp"),
			Streak:         rapid.IntRange(0, 14).Draw(t, "streak"),
			MaxLives:       5,
			ProvinceScores: model.ProvinceScores{},
		}
		for _, id := range []string{"A", "B", "C"} {
			if rapid.Bool().Draw(t, "has_"+id) {
				p.ProvinceScores[id] = model.ProvinceScore{
					Score:       rapid.IntRange(0, 5).Draw(t, "score_"+id),
					MaxScore:    5,
					IsCompleted: rapid.Bool().Draw(t, "done_"+id),
				}
			}
		}
		for _, b := range catalog {
			if rapid.Bool().Draw(t, "earned_"+b.ID) {
				p.EarnedBadges = append(p.EarnedBadges, model.EarnedBadge{BadgeID: b.ID})
			}
		}

		want := map[string]bool{}
		for _, b := range catalog {
			if !p.EarnedBadges.Has(b.ID) && Satisfied(b.Condition, p, testGeo) {
				want[b.ID] = true
			}
		}

		next, unlocked := AwardBadges(p, catalog, testGeo, time.Unix(0, 0))
		if len(unlocked) != len(want) {
			t.Fatalf("unlocked %d badges, want %d", len(unlocked), len(want))
		}
		for _, b := range unlocked {
			if !want[b.ID] {
				t.Fatalf("unexpected badge %s", b.ID)
			}
			if b.ID == "void" {
				t.Fatalf("empty region must never unlock")
			}
		}
		if err := next.EarnedBadges.Validate(); err != nil {
			t.Fatalf("re-awarded badge: %v", err)
		}

		_, more := AwardBadges(next, catalog, testGeo, time.Unix(0, 0))
		for _, b := range more {
			if want[b.ID] || p.EarnedBadges.Has(b.ID) {
				t.Fatalf("badge %s awarded twice", b.ID)
			}
		}
	})
}

// TestRegionMasterProperty checks the region badge unlocks iff every
// province of the region is completed.
func TestRegionMasterProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cond := model.BadgeCondition{Kind: model.ConditionRegionMaster, Region: "triad"}
		p := model.Progress{ProvinceScores: model.ProvinceScores{}}
		all := true
		for _, id := range []string{"A", "B", "C"} {
			done := rapid.Bool().Draw(t, id)
			all = all && done
			p.ProvinceScores[id] = model.ProvinceScore{Score: 1, MaxScore: 1, IsCompleted: done}
		}
		if Satisfied(cond, p, testGeo) != all {
			t.Fatalf("region mastery %v, want %v", !all, all)
		}
	})
}
