package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// RateLimiter はプロバイダー呼び出しのレート制限を管理する
// プロセス全体で1つを共有し、同時に処理される複数リクエストが同じクォータを消費する
//
// トークンは1分あたり maxRequestsPerMinute 個の速度で連続的に補充され、
// 上限は maxRequestsPerMinute 個（1分間のバースト）
type RateLimiter struct {
	mu sync.Mutex

	maxRequestsPerMinute int
	tokens               float64
	lastRefill           time.Time
	waiting              int

	// inFlight は同時実行数を制限するセマフォ
	inFlight chan struct{}

	now func() time.Time
}

// NewRateLimiter は新しいRateLimiterを作成する
// maxConcurrent が0以下の場合は maxRequestsPerMinute を同時実行数の上限とする
func NewRateLimiter(maxRequestsPerMinute, maxConcurrent int) *RateLimiter {
	if maxRequestsPerMinute <= 0 {
		maxRequestsPerMinute = 1
	}
	if maxConcurrent <= 0 {
		maxConcurrent = maxRequestsPerMinute
	}

	return &RateLimiter{
		maxRequestsPerMinute: maxRequestsPerMinute,
		tokens:               float64(maxRequestsPerMinute),
		lastRefill:           time.Now(),
		inFlight:             make(chan struct{}, maxConcurrent),
		now:                  time.Now,
	}
}

// Wait は同時実行枠とトークンを1つずつ取得するまで待機する
// 成功した場合は呼び出し側が Release を呼ぶこと
func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case rl.inFlight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		wait, ok := rl.take()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			rl.mu.Lock()
			rl.waiting--
			rl.mu.Unlock()
			<-rl.inFlight
			return ctx.Err()
		}

		rl.mu.Lock()
		rl.waiting--
		rl.mu.Unlock()
	}
}

// take はトークンを1つ消費する
// 足りない場合は次のトークンが補充されるまでの時間を返し、待機数を1つ増やす
func (rl *RateLimiter) take() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}

	rl.waiting++
	perToken := time.Minute / time.Duration(rl.maxRequestsPerMinute)
	wait := time.Duration((1 - rl.tokens) * float64(perToken))
	return max(wait, time.Millisecond), false
}

// Release は同時実行枠を返却する
func (rl *RateLimiter) Release() {
	<-rl.inFlight
}

// refill は経過時間に応じてトークンを補充する（ロック取得済みであること）
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed <= 0 {
		return
	}

	limit := float64(rl.maxRequestsPerMinute)
	rl.tokens = math.Min(limit, rl.tokens+elapsed.Minutes()*limit)
	rl.lastRefill = now
}

// GetStatus は現在の状態を返す（デバッグ・監視用）
func (rl *RateLimiter) GetStatus() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	return RateLimiterStatus{
		MaxRequestsPerMinute: rl.maxRequestsPerMinute,
		AvailableTokens:      int(math.Floor(rl.tokens)),
		WaitingRequests:      rl.waiting,
		ActiveRequests:       len(rl.inFlight),
	}
}

// RateLimiterStatus はレート制限の状態
type RateLimiterStatus struct {
	MaxRequestsPerMinute int
	AvailableTokens      int
	WaitingRequests      int
	ActiveRequests       int
}

func (s RateLimiterStatus) String() string {
	return fmt.Sprintf(
		"RateLimiter: max=%d/min, available=%d, waiting=%d, active=%d",
		s.MaxRequestsPerMinute,
		s.AvailableTokens,
		s.WaitingRequests,
		s.ActiveRequests,
	)
}
