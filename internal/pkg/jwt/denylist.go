package jwt

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Denylist 进程内的令牌注销名单，按 jti 记录，条目随令牌过期一起清除。
// 多实例部署时每个实例各自维护。
type Denylist struct {
	entries *cache.Cache
}

func NewDenylist(cleanupInterval time.Duration) *Denylist {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &Denylist{
		entries: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

// Add ttl <= 0 时令牌已过期，无需记录
func (d *Denylist) Add(jti string, ttl time.Duration) {
	if jti == "" || ttl <= 0 {
		return
	}
	d.entries.Set(jti, struct{}{}, ttl)
}

func (d *Denylist) IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	_, found := d.entries.Get(jti)
	return found
}

func (d *Denylist) Len() int {
	return d.entries.ItemCount()
}
