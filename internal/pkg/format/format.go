package format

import (
	"fmt"
	"strings"
	"time"
)

// Percent 把比例值渲染为百分数（win_rate 列按 0.583 这类口径入库）。
func Percent(val float64) string {
	if val == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", val*100)
}

func Float(val float64, decimals int) string {
	if decimals < 0 {
		decimals = 4
	}
	out := fmt.Sprintf("%.*f", decimals, val)
	out = strings.TrimRight(strings.TrimRight(out, "0"), ".")
	if out == "" || out == "-" {
		return "0"
	}
	return out
}

// Money 带符号的金额展示（净利润列用）。
func Money(val float64) string {
	if val >= 0 {
		return fmt.Sprintf("+$%.2f", val)
	}
	return fmt.Sprintf("-$%.2f", -val)
}

// Timestamp 统一的时间展示格式（UTC，秒级）。
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
