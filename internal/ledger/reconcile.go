package ledger

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dadaal/internal/dadaalapi"
	"dadaal/internal/monitoring"
	"dadaal/internal/worker"
)

// The transaction log is authoritative; total_earnings is a materialized
// cache. The reconciler recomputes the sum of completed earning-kind
// transactions per user and repairs the cached column when it drifts.

type reconcileTask struct {
	svc    *Service
	userID uint
}

func (t *reconcileTask) Execute() {
	t.svc.reconcileUser(t.userID)
}

// Reconcile schedules a balance check for every user on the pool.
func (s *Service) Reconcile(ctx context.Context, pool *worker.Pool) (int, error) {
	var ids []uint
	res := s.db.WithContext(ctx).
		Model(&dadaalapi.User{}).
		Pluck("id", &ids)
	if res.Error != nil {
		return 0, res.Error
	}
	for _, id := range ids {
		pool.Exec(&reconcileTask{svc: s, userID: id})
	}
	return len(ids), nil
}

func (s *Service) reconcileUser(userID uint) {
	var recomputed float64
	res := s.db.Model(&dadaalapi.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where(
			"user_id = ? AND status = ? AND kind IN ?",
			userID,
			dadaalapi.TxCompleted,
			dadaalapi.EarningKinds,
		).Scan(&recomputed)
	if res.Error != nil {
		zap.L().Error("reconcile: sum query failed", zap.Uint("user_id", userID), zap.Error(res.Error))
		return
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user dadaalapi.User
		r := lockRow(tx).
			Where(
				"id = ?",
				userID,
			).First(&user)
		if r.RowsAffected != 1 {
			return nil
		}
		if !Drifted(user.TotalEarnings, recomputed) {
			return nil
		}
		zap.L().Warn("reconcile: total_earnings drifted, repairing from transaction log",
			zap.Uint("user_id", userID),
			zap.Float64("cached", user.TotalEarnings),
			zap.Float64("recomputed", recomputed),
		)
		monitoring.ReconcileRepairs.Inc()
		return tx.Model(&dadaalapi.User{}).
			Where("id = ?", userID).
			Update("total_earnings", recomputed).Error
	})
	if err != nil {
		zap.L().Error("reconcile: repair failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// Drifted reports whether the cached balance disagrees with the recomputed
// sum beyond float rounding noise.
func Drifted(cached float64, recomputed float64) bool {
	diff := cached - recomputed
	if diff < 0 {
		diff = -diff
	}
	return diff >= 0.005
}
