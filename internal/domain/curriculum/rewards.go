package curriculum

// WeeklyReward is the base token amount paid for any completed week.
const WeeklyReward int64 = 100

var milestoneBonuses = map[int]int64{
	8:  500,
	20: 1000,
	36: 1500,
	52: 5000,
}

var milestones = []int{8, 20, 36, 52}

// MilestoneBonus returns the extra amount for a milestone week, 0 otherwise.
func MilestoneBonus(week int) int64 {
	return milestoneBonuses[week]
}

// IsMilestone reports whether week carries a bonus and a badge.
func IsMilestone(week int) bool {
	_, ok := milestoneBonuses[week]
	return ok
}

// Milestones returns the milestone weeks in ascending order.
func Milestones() []int {
	out := make([]int, len(milestones))
	copy(out, milestones)
	return out
}

// WeekReward is the amount owed for completing week: base plus any milestone bonus.
func WeekReward(week int) int64 {
	return WeeklyReward + MilestoneBonus(week)
}

// MaxTotalReward is the most one participant can ever be paid.
func MaxTotalReward() int64 {
	var total int64
	for w := 1; w <= Weeks; w++ {
		total += WeekReward(w)
	}
	return total
}

// SumRewards totals WeekReward over weeks.
func SumRewards(weeks []int) int64 {
	var total int64
	for _, w := range weeks {
		total += WeekReward(w)
	}
	return total
}
