package console

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleIterationChartData returns the prepared chart data for one iteration
// as JSON, for clients that render their own charts.
// GET /api/replay/chart?session_id=...&iteration=3&width=800&height=600&padding=40
func (ws *WebServer) handleIterationChartData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}

	iteration := s.Scheduler.State().CurrentIteration
	if v := r.URL.Query().Get("iteration"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			iteration = n
		}
	}
	width := intQueryParam(r, "width", 800)
	height := intQueryParam(r, "height", 600)
	padding := intQueryParam(r, "padding", 40)

	data, err := PrepareIterationChartData(s.Dataset, iteration, width, height, padding)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSON(w, data)
}

// handleIterationChartPage renders one iteration as an eCharts page: the
// sample distribution scatter on top and the best-energy trace below.
// GET /api/replay/charts/iteration?session_id=...&iteration=3
func (ws *WebServer) handleIterationChartPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}

	iteration := s.Scheduler.State().CurrentIteration
	if v := r.URL.Query().Get("iteration"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			iteration = n
		}
	}

	data, err := PrepareIterationChartData(s.Dataset, iteration, 800, 600, 40)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(iterationScatterChart(data), energyTraceChart(data))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func iterationScatterChart(data *IterationChartData) *charts.Scatter {
	samplePts := make([]opts.ScatterData, 0, len(data.Points))
	elitePts := make([]opts.ScatterData, 0, data.EliteCount)
	for _, p := range data.Points {
		pt := opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Energy}}
		if p.Elite {
			elitePts = append(elitePts, pt)
		} else {
			samplePts = append(samplePts, pt)
		}
	}

	subtitle := fmt.Sprintf("iteration=%d/%d best=%.3f elites=%d/%d",
		data.Iteration, data.TotalIterations, data.BestEnergy, data.EliteCount, data.TotalSamples)
	if !data.HasSamples {
		subtitle = fmt.Sprintf("iteration=%d/%d best=%.3f (no sample data)",
			data.Iteration, data.TotalIterations, data.BestEnergy)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sample Distribution", Theme: "dark", Width: "900px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Sample Distribution", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("samples", samplePts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("elites", elitePts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 7}), charts.WithItemStyleOpts(opts.ItemStyle{Color: data.ProgressColor}))
	scatter.AddSeries("mean", []opts.ScatterData{{Value: []interface{}{data.MeanWorld[0], data.MeanWorld[1], data.BestEnergy}}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	return scatter
}

func energyTraceChart(data *IterationChartData) *charts.Line {
	x := make([]string, len(data.EnergyTrace))
	y := make([]opts.LineData, len(data.EnergyTrace))
	for i, e := range data.EnergyTrace {
		x[i] = strconv.Itoa(i + 1)
		y[i] = opts.LineData{Value: e}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Best Energy", Subtitle: fmt.Sprintf("current iteration %d", data.Iteration)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "energy"}),
	)
	line.SetXAxis(x).AddSeries("best energy", y)
	return line
}

func intQueryParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
