package automation

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CheckSchedule 校验 cron 表达式，秒字段可省略，空串表示不启用
func CheckSchedule(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	if _, err := scheduleParser.Parse(spec); err != nil {
		return errors.Wrapf(err, "定时任务表达式无效: %s", spec)
	}
	return nil
}

// Scheduler 按 cron 表达式定时提交采集任务
type Scheduler struct {
	cron *cron.Cron
	exec *Executor
	spec string
}

func NewScheduler(exec *Executor) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithParser(scheduleParser)),
		exec: exec,
	}
}

// Start 注册并启动定时任务，spec 为空时不做任何事
func (s *Scheduler) Start(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		logrus.Debug("未配置定时任务")
		return nil
	}

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return errors.Wrapf(err, "定时任务表达式无效: %s", spec)
	}
	s.spec = spec
	s.cron.Start()

	logrus.Infof("定时采集已启用: %s", spec)
	return nil
}

func (s *Scheduler) tick() {
	h, err := s.exec.Submit(RunOptions{})
	if errors.Is(err, ErrRunInProgress) {
		logrus.Info("上一次采集任务尚未结束，跳过本次定时触发")
		return
	}
	if err != nil {
		logrus.WithError(err).Error("定时提交采集任务失败")
		return
	}
	logrus.WithField("run_id", h.ID()).Info("定时采集任务已提交")
}

// Stop 停止调度，不会中断正在执行的任务
func (s *Scheduler) Stop() {
	if s.spec == "" {
		return
	}
	<-s.cron.Stop().Done()
}
