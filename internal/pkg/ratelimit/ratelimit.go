package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

// Rule 在 Window 时长内最多允许 Limit 次请求
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result 单次判定结果
type Result struct {
	Allowed    bool
	Limit      int
	Window     time.Duration
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter 进程内滑动窗口（时间戳日志）限流器。
// 每个 key 只保留窗口内的请求时间，最多 Limit 条；
// 距离 t 恰好一个窗口时，t 时刻的请求移出窗口。
// 状态不持久化，多实例部署时各实例独立计数。
type Limiter struct {
	shards      []*shard
	rule        Rule
	idleWindows int
	now         func() time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	hits     []time.Time
	window   time.Duration
	lastSeen time.Time
}

// Options 限流器参数
type Options struct {
	// DefaultRule IsAllowed / ResetTime 使用的规则
	DefaultRule Rule
	// IdleWindows 连续多少个窗口没有请求的 key 会被 Sweep 清除
	IdleWindows int
	Shards      int
}

func New(opts Options) *Limiter {
	if opts.Shards <= 0 {
		opts.Shards = 32
	}
	if opts.IdleWindows <= 0 {
		opts.IdleWindows = 3
	}
	if opts.DefaultRule.Window <= 0 {
		opts.DefaultRule.Window = time.Minute
	}
	if opts.DefaultRule.Limit <= 0 {
		opts.DefaultRule.Limit = 10
	}

	shards := make([]*shard, opts.Shards)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}

	return &Limiter{
		shards:      shards,
		rule:        opts.DefaultRule,
		idleWindows: opts.IdleWindows,
		now:         time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// IsAllowed 按默认规则判定并记录一次请求
func (l *Limiter) IsAllowed(key string) bool {
	return l.Allow(key, l.rule).Allowed
}

// ResetTime 按默认规则返回 key 下一次可用额度恢复的时间
func (l *Limiter) ResetTime(key string) time.Time {
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return now
	}
	e.prune(now, l.rule.Window)
	if len(e.hits) == 0 {
		return now
	}
	return e.hits[0].Add(l.rule.Window)
}

// Allow 判定 key 在 rule 下是否放行；放行时记录本次请求
func (l *Limiter) Allow(key string, rule Rule) Result {
	now := l.now()
	rule = l.normalize(rule)
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.touch(key, rule, now)
	if res, denied := e.check(now, rule); denied {
		return res
	}
	return e.record(now, rule)
}

// AllowAll 同一个 key 同时受多条规则约束（如每分钟和每小时）。
// 任一规则拒绝时返回该规则的结果，且所有规则都不记录本次请求；
// 全部放行时返回剩余额度最少的那条
func (l *Limiter) AllowAll(key string, rules ...Rule) Result {
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := make([]Rule, len(rules))
	entries := make([]*entry, len(rules))
	for i, rule := range rules {
		rule = l.normalize(rule)
		e := s.touch(ruleKey(key, rule), rule, now)
		if res, denied := e.check(now, rule); denied {
			return res
		}
		normalized[i] = rule
		entries[i] = e
	}

	var tightest Result
	for i, rule := range normalized {
		res := entries[i].record(now, rule)
		if i == 0 || res.Remaining < tightest.Remaining {
			tightest = res
		}
	}
	return tightest
}

// Sweep 清除长时间没有请求的 key，返回清除数量
func (l *Limiter) Sweep() int {
	now := l.now()
	evicted := 0

	for _, s := range l.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			idle := time.Duration(l.idleWindows) * e.window
			if now.Sub(e.lastSeen) >= idle {
				delete(s.entries, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}

	return evicted
}

// Len 当前跟踪的 key 数量
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// normalize 窗口缺省时使用默认窗口；Limit <= 0 保持原样，表示全部拒绝
func (l *Limiter) normalize(rule Rule) Rule {
	if rule.Window <= 0 {
		rule.Window = l.rule.Window
	}
	return rule
}

// ruleKey 多规则共用一个 key 时按窗口区分计数，同一 key 的各窗口落在同一分片
func ruleKey(key string, rule Rule) string {
	return key + "|" + rule.Window.String()
}

func (s *shard) touch(key string, rule Rule, now time.Time) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{hits: make([]time.Time, 0, min(max(rule.Limit, 0), 64))}
		s.entries[key] = e
	}
	e.window = rule.Window
	e.lastSeen = now
	e.prune(now, rule.Window)
	return e
}

// check 额度已满时返回拒绝结果
func (e *entry) check(now time.Time, rule Rule) (Result, bool) {
	res := Result{Limit: max(rule.Limit, 0), Window: rule.Window}
	if rule.Limit <= 0 {
		res.ResetAt = now.Add(rule.Window)
		res.RetryAfter = rule.Window
		return res, true
	}
	if len(e.hits) < rule.Limit {
		return res, false
	}
	res.ResetAt = e.hits[0].Add(rule.Window)
	res.RetryAfter = res.ResetAt.Sub(now)
	return res, true
}

func (e *entry) record(now time.Time, rule Rule) Result {
	e.hits = append(e.hits, now)
	return Result{
		Allowed:   true,
		Limit:     rule.Limit,
		Window:    rule.Window,
		Remaining: rule.Limit - len(e.hits),
		ResetAt:   e.hits[0].Add(rule.Window),
	}
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// prune 移除已滑出窗口的时间戳，原地压缩保持容量有界
func (e *entry) prune(now time.Time, window time.Duration) {
	i := 0
	for i < len(e.hits) && now.Sub(e.hits[i]) >= window {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(e.hits, e.hits[i:])
	e.hits = e.hits[:n]
}
