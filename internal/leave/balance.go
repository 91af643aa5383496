package leave

import (
	"math"
	"time"

	"github.com/marvellous-media/marvellous-manager/internal/user"
)

type Balance struct {
	UserID        string  `json:"user_id"`
	Username      string  `json:"username,omitempty"`
	BalanceHours  *int    `json:"balance_hours"`
	BalanceDays   float64 `json:"balance_days"`
	ApprovedDays  int     `json:"approved_days"`
	RemainingDays float64 `json:"remaining_days"`
}

// BalanceRow is one user's raw numbers as read by the report query.
type BalanceRow struct {
	UserID       string `db:"user_id"`
	Username     string `db:"username"`
	BalanceHours *int   `db:"balance"`
	ApprovedDays int    `db:"approved_days"`
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysInclusive counts calendar days from start to end, both included.
func DaysInclusive(start, end time.Time) int {
	diff := civil(end).Sub(civil(start))
	return int(math.Round(diff.Hours()/24)) + 1
}

// ApprovedDays sums the inclusive length of every approved request.
func ApprovedDays(requests []*LeaveRequest) int {
	total := 0
	for _, r := range requests {
		if r.Status != StatusApproved {
			continue
		}
		total += DaysInclusive(r.StartDate, r.EndDate)
	}
	return total
}

func RemainingDays(balanceDays float64, approved int) float64 {
	return math.Max(0, balanceDays-float64(approved))
}

func ComputeBalance(rules user.BalanceRules, row BalanceRow) Balance {
	days := rules.DaysFromHours(row.BalanceHours)
	return Balance{
		UserID:        row.UserID,
		Username:      row.Username,
		BalanceHours:  row.BalanceHours,
		BalanceDays:   days,
		ApprovedDays:  row.ApprovedDays,
		RemainingDays: RemainingDays(days, row.ApprovedDays),
	}
}
