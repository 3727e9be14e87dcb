package job

import (
	"context"
	"time"

	"simmarket/internal/repository"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Mismatch 用户冻结余额与有效冻结单之和不一致
type Mismatch struct {
	UserID         int64
	BlockedBalance int64
	ActiveHolds    int64
}

// HoldReconcileJob 定时核对冻结余额，只读，只记录告警不修正
type HoldReconcileJob struct {
	store     repository.Store
	spec      string
	cron      *cron.Cron
	log       *logrus.Entry
	batchSize int
}

func NewHoldReconcileJob(store repository.Store, spec string) *HoldReconcileJob {
	log := logrus.WithField("component", "hold_reconcile")
	return &HoldReconcileJob{
		store:     store,
		spec:      spec,
		cron:      cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log)))),
		log:       log,
		batchSize: 1000,
	}
}

func (j *HoldReconcileJob) Start() error {
	_, err := j.cron.AddFunc(j.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		j.Reconcile(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.log.WithField("schedule", j.spec).Info("冻结对账任务启动")
	return nil
}

// Stop 返回的 ctx 在正在执行的任务结束后关闭
func (j *HoldReconcileJob) Stop() context.Context {
	return j.cron.Stop()
}

// Reconcile 扫描冻结余额不为 0 或持有 ACTIVE 冻结单的用户
func (j *HoldReconcileJob) Reconcile(ctx context.Context) []Mismatch {
	users, err := j.store.ListUsersWithHeldFunds(ctx, j.batchSize)
	if err != nil {
		j.log.WithError(err).Error("查询冻结用户失败")
		return nil
	}

	var mismatches []Mismatch
	for _, u := range users {
		sum, err := j.store.SumActiveHolds(ctx, u.ID)
		if err != nil {
			j.log.WithError(err).WithField("user_id", u.ID).Error("统计冻结单失败")
			continue
		}
		if sum != u.BlockedBalance {
			m := Mismatch{UserID: u.ID, BlockedBalance: u.BlockedBalance, ActiveHolds: sum}
			mismatches = append(mismatches, m)
			j.log.WithFields(logrus.Fields{
				"user_id":      m.UserID,
				"blocked":      m.BlockedBalance,
				"active_holds": m.ActiveHolds,
			}).Warn("冻结余额与冻结单不一致")
		}
	}

	j.log.Debugf("冻结对账完成: users=%d, mismatches=%d", len(users), len(mismatches))
	return mismatches
}
