package settle

// CommissionCfg 佣金配置，单位分
type CommissionCfg struct {
	Pct int64 // 0-100
	Min int64
	Max int64
}

// Commission 按比例计算佣金再夹在 [min, max] 区间里
// 注意 min 优先级更高：小额充值也至少收 min，结果可能吃掉整笔金额，
// 那种情况调用方走零结算路径
func Commission(amount int64, cfg CommissionCfg) int64 {
	if cfg.Pct <= 0 {
		return 0
	}
	c := amount * cfg.Pct / 100
	if cfg.Max > 0 && c > cfg.Max {
		c = cfg.Max
	}
	if c < cfg.Min {
		c = cfg.Min
	}
	return c
}
