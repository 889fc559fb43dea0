package ingest

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"pcindex/internal/logger"
)

// nextWeekdayAt：now 之后第一个 weekday 的 hour 整点
func nextWeekdayAt(now time.Time, weekday time.Weekday, hour int) time.Time {
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() != weekday {
			continue
		}
		t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
		if t.After(now) {
			return t
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
}

// parseWeekday：英文星期名（不区分大小写，可缩写为前三个字母）
func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.HasPrefix(strings.ToLower(d.String()), s) {
			return d, true
		}
	}
	return 0, false
}

// 文档注释：按阿姆斯特丹时间每周定时执行重建任务，运行在后台协程
// 背景：BAG 数据按固定节奏发布，服务进程内定期全量重建索引；失败只记日志，下周继续
// 约束：REBUILD_WEEKDAY 默认 monday，REBUILD_HOUR 默认 3；ctx 取消后停止调度
func StartWeekly(ctx context.Context, job func(ctx context.Context) error) {
	l := logger.L()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		loc = time.UTC
	}
	weekday := time.Monday
	if d, ok := parseWeekday(os.Getenv("REBUILD_WEEKDAY")); ok {
		weekday = d
	}
	hour := 3
	if h := os.Getenv("REBUILD_HOUR"); h != "" {
		if n, err := strconv.Atoi(h); err == nil && n >= 0 && n < 24 {
			hour = n
		}
	}
	next := nextWeekdayAt(time.Now().In(loc), weekday, hour)
	l.Info("rebuild_scheduled", "next", next)
	go func() {
		for {
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			l.Info("rebuild_start", "at", next)
			if err := job(ctx); err != nil {
				l.Error("rebuild_error", "err", err)
			} else {
				l.Info("rebuild_done")
			}
			next = nextWeekdayAt(time.Now().In(loc), weekday, hour)
		}
	}()
}
