package service

import (
	"time"

	"github.com/qs3c/hashtag_server/config"
	"github.com/qs3c/hashtag_server/internal/model"
)

// Plan 套餐限额，运行期间不可变
type Plan struct {
	ID                string
	MonthlyQuota      int // -1 表示不限量
	RequestsPerMinute int
	RequestsPerHour   int
	PeriodDays        int
}

func (p Plan) Unlimited() bool {
	return p.MonthlyQuota < 0
}

// LimitReached used 是否已达到月度额度
func (p Plan) LimitReached(used int64) bool {
	if p.Unlimited() {
		return false
	}
	return used >= int64(p.MonthlyQuota)
}

// PlanRegistry 按 ID 查找套餐
type PlanRegistry struct {
	plans map[string]Plan
}

// NewPlanRegistry 用配置覆盖内置套餐；缺失的套餐沿用内置值
func NewPlanRegistry(cfg map[string]config.PlanConfig) *PlanRegistry {
	r := &PlanRegistry{plans: make(map[string]Plan)}
	for id, pc := range config.DefaultPlans() {
		r.plans[id] = planFromConfig(id, pc)
	}
	for id, pc := range cfg {
		if _, ok := r.plans[id]; ok {
			r.plans[id] = planFromConfig(id, pc)
		}
	}
	return r
}

func planFromConfig(id string, pc config.PlanConfig) Plan {
	if pc.PeriodDays <= 0 {
		pc.PeriodDays = 30
	}
	if pc.RequestsPerHour <= 0 {
		pc.RequestsPerHour = pc.RequestsPerMinute * 60
	}
	return Plan{
		ID:                id,
		MonthlyQuota:      pc.MonthlyQuota,
		RequestsPerMinute: pc.RequestsPerMinute,
		RequestsPerHour:   pc.RequestsPerHour,
		PeriodDays:        pc.PeriodDays,
	}
}

func (r *PlanRegistry) Get(id string) (Plan, bool) {
	p, ok := r.plans[id]
	return p, ok
}

// Free 匿名用户和无有效订阅的用户使用的套餐
func (r *PlanRegistry) Free() Plan {
	return r.plans[config.PlanFree]
}

// Resolve 订阅为空、未激活、已过期或套餐未知时回退到 free
func (r *PlanRegistry) Resolve(sub *model.Subscription, now time.Time) Plan {
	if !sub.IsCurrent(now) {
		return r.Free()
	}
	if p, ok := r.plans[sub.PlanID]; ok {
		return p
	}
	return r.Free()
}
