package task

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRun 计算 ref 之后的下一次运行时间，manual 任务返回 nil。
// 纯函数：只依赖 cadence、schedule、timezone 和 ref。
func NextRun(t *Task, ref time.Time) (*time.Time, error) {
	loc, err := t.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
	}

	switch t.Cadence {
	case CadenceManual:
		return nil, nil

	case CadenceInterval:
		next := ref.Add(time.Duration(t.Schedule.IntervalMinutes) * time.Minute)
		return &next, nil

	case CadenceHourly:
		// 任务时区内下一个整点
		lt := ref.In(loc)
		next := time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc).Add(time.Hour)
		return &next, nil

	case CadenceDaily:
		// 配置时刻当天未过则今天触发，否则顺延到明天
		lt := ref.In(loc)
		next := time.Date(lt.Year(), lt.Month(), lt.Day(), t.Schedule.Hour, t.Schedule.Minute, 0, 0, loc)
		if !next.After(ref) {
			next = next.AddDate(0, 0, 1)
		}
		return &next, nil

	case CadenceCron:
		schedule, err := cron.ParseStandard(t.Schedule.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression: %w", err)
		}
		next := schedule.Next(ref.In(loc))
		return &next, nil

	default:
		return nil, fmt.Errorf("unknown cadence %q", t.Cadence)
	}
}
