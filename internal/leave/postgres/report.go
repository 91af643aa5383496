package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/marvellous-media/marvellous-manager/internal/leave"
)

const balanceReportQuery = `
SELECT u.id AS user_id,
       u.username,
       u.balance,
       COALESCE(SUM(lr.end_date - lr.start_date + 1) FILTER (WHERE lr.status = 'approved'), 0) AS approved_days
FROM users u
LEFT JOIN leave_requests lr ON lr.user_id = u.id
GROUP BY u.id, u.username, u.balance
ORDER BY u.username`

// BalanceReportStore reads the admin balance report with a single aggregate query.
type BalanceReportStore struct {
	db *sqlx.DB
}

func NewBalanceReportStore(db *sqlx.DB) *BalanceReportStore {
	return &BalanceReportStore{db: db}
}

func (s *BalanceReportStore) BalanceReport(ctx context.Context) ([]leave.BalanceRow, error) {
	var rows []leave.BalanceRow
	if err := s.db.SelectContext(ctx, &rows, balanceReportQuery); err != nil {
		return nil, err
	}
	return rows, nil
}
