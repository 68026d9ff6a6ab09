package _const

const (
	DefaultJobGroup     = "DEFAULT_JOB_GROUP"          // 默认Job分组
	DefaultTriggerGroup = "DEFAULT_CRON_TRIGGER_GROUP" // 默认触发器分组
	DefaultMethod       = "run"                        // 方法型任务默认执行的方法
	ReconcileJobName    = "configAutoRefreshTask"      // 配置自动刷新任务
	DefaultCron         = "0/6 * * * * ?"              // 配置自动刷新任务默认表达式
	DefaultProbability  = 0.5                          // 随机清理游离任务的默认概率
)
