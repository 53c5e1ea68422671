// Package report renders file-based survey reports: an HTML uncertainty
// report over the processed soundings and a sound velocity profile plot.
package report

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/pelagic-data/bathy.report/internal/sonar"
)

// UncertaintyReport summarizes per-line sounding uncertainty for the HTML
// report: min/max TVU and THU per ping bucket.
type UncertaintyReport struct {
	Lines []LineSummary
}

// LineSummary holds the per-ping uncertainty envelope for one line.
type LineSummary struct {
	LineID    string
	PingIndex []int
	MinTVU    []float64
	MaxTVU    []float64
	MinTHU    []float64
	MaxTHU    []float64
	Soundings int
	Degraded  int
	Rejected  int
}

// BuildUncertaintyReport reduces soundings into per-line, per-ping
// envelopes.
func BuildUncertaintyReport(soundings []sonar.Sounding) *UncertaintyReport {
	type bucket struct {
		tvu []float64
		thu []float64
	}
	byLine := make(map[string]map[int]*bucket)
	counts := make(map[string]*LineSummary)
	for i := range soundings {
		s := &soundings[i]
		if byLine[s.LineID] == nil {
			byLine[s.LineID] = make(map[int]*bucket)
			counts[s.LineID] = &LineSummary{LineID: s.LineID}
		}
		b := byLine[s.LineID][s.PingIndex]
		if b == nil {
			b = &bucket{}
			byLine[s.LineID][s.PingIndex] = b
		}
		b.tvu = append(b.tvu, s.TVU)
		b.thu = append(b.thu, s.THU)
		cs := counts[s.LineID]
		cs.Soundings++
		if s.Flag.Degraded() {
			cs.Degraded++
		}
		if s.Flag.Rejected() {
			cs.Rejected++
		}
	}

	rep := &UncertaintyReport{}
	lineIDs := make([]string, 0, len(byLine))
	for id := range byLine {
		lineIDs = append(lineIDs, id)
	}
	sort.Strings(lineIDs)

	for _, id := range lineIDs {
		ls := counts[id]
		pings := make([]int, 0, len(byLine[id]))
		for p := range byLine[id] {
			pings = append(pings, p)
		}
		sort.Ints(pings)
		for _, p := range pings {
			b := byLine[id][p]
			ls.PingIndex = append(ls.PingIndex, p)
			ls.MinTVU = append(ls.MinTVU, sonar.CalcMinVar(b.tvu))
			ls.MaxTVU = append(ls.MaxTVU, sonar.CalcMaxVar(b.tvu))
			ls.MinTHU = append(ls.MinTHU, sonar.CalcMinVar(b.thu))
			ls.MaxTHU = append(ls.MaxTHU, sonar.CalcMaxVar(b.thu))
		}
		rep.Lines = append(rep.Lines, *ls)
	}
	return rep
}

// WriteHTML renders the report as a standalone HTML page with one TVU and
// one THU chart per line.
func (r *UncertaintyReport) WriteHTML(path string) error {
	if len(r.Lines) == 0 {
		return fmt.Errorf("no soundings to report on")
	}

	page := components.NewPage()
	page.PageTitle = "Sounding uncertainty report"

	for i := range r.Lines {
		ls := &r.Lines[i]
		page.AddCharts(
			envelopeChart(ls, "TVU", ls.MinTVU, ls.MaxTVU),
			envelopeChart(ls, "THU", ls.MinTHU, ls.MaxTHU),
		)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

func envelopeChart(ls *LineSummary, name string, minVals, maxVals []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Line %s %s envelope", ls.LineID, name),
			Subtitle: fmt.Sprintf("%d soundings, %d degraded, %d rejected", ls.Soundings, ls.Degraded, ls.Rejected),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: name + " (m)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "ping"}),
	)

	xAxis := make([]string, len(ls.PingIndex))
	minSeries := make([]opts.LineData, len(minVals))
	maxSeries := make([]opts.LineData, len(maxVals))
	for i := range ls.PingIndex {
		xAxis[i] = fmt.Sprintf("%d", ls.PingIndex[i])
		minSeries[i] = opts.LineData{Value: minVals[i]}
		maxSeries[i] = opts.LineData{Value: maxVals[i]}
	}
	line.SetXAxis(xAxis).
		AddSeries("min "+name, minSeries).
		AddSeries("max "+name, maxSeries)
	return line
}
