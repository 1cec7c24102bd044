package web

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	talib "github.com/markcheno/go-talib"

	"liuops/internal/gateway/database"
	"liuops/internal/pkg/format"
)

// SMA 叠加窗口（数据点不足时不画均线）。
const smaPeriod = 20

// RenderTradeCharts 把最近执行渲染为 价格折线(+SMA) 与 数量柱状 两张图。
// 输入按时间倒序（仓库返回顺序），这里翻转为时间正序作图。
func RenderTradeCharts(w io.Writer, execs []database.Execution) error {
	n := len(execs)
	xs := make([]string, n)
	prices := make([]float64, n)
	lineData := make([]opts.LineData, n)
	barData := make([]opts.BarData, n)
	for i, e := range execs {
		j := n - 1 - i
		xs[j] = format.Timestamp(e.Timestamp)
		prices[j] = e.Price
		lineData[j] = opts.LineData{Value: e.Price}
		barData[j] = opts.BarData{Value: e.Qty}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Price over time"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	line.SetXAxis(xs).AddSeries("price", lineData)
	if n >= smaPeriod {
		sma := talib.Sma(prices, smaPeriod)
		smaData := make([]opts.LineData, n)
		for i, v := range sma {
			if i < smaPeriod-1 {
				smaData[i] = opts.LineData{Value: "-"}
				continue
			}
			smaData[i] = opts.LineData{Value: v}
		}
		line.AddSeries("SMA20", smaData)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Quantity over time"}),
	)
	bar.SetXAxis(xs).AddSeries("qty", barData)

	page := components.NewPage()
	page.AddCharts(line, bar)
	return page.Render(w)
}
