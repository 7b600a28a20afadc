// Package export renders decomposition results as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/kilianp07/benders/core/benders"
	"github.com/kilianp07/benders/core/model"
	"github.com/kilianp07/benders/core/stochastic"
)

// GeneratorSchedule is the day-ahead quantity of one generator.
type GeneratorSchedule struct {
	GeneratorID  string  `json:"generator_id"`
	Dispatch     float64 `json:"dispatch"`
	DayAheadCost float64 `json:"day_ahead_cost"`
}

// ScenarioOutcome is the recourse of one scenario under the final dispatch.
type ScenarioOutcome struct {
	ScenarioID   string  `json:"scenario_id"`
	Probability  float64 `json:"probability"`
	RecourseCost float64 `json:"recourse_cost"`
	BalanceDual  float64 `json:"balance_dual"`
}

// Report is the serializable summary of a run. Theta, LowerBound and Gap are
// omitted when infinite.
type Report struct {
	RunID            string              `json:"run_id"`
	Converged        bool                `json:"converged"`
	Iterations       int                 `json:"iterations"`
	Round            int                 `json:"round"`
	Theta            *float64            `json:"theta,omitempty"`
	LowerBound       *float64            `json:"lower_bound,omitempty"`
	Gap              *float64            `json:"gap,omitempty"`
	ExpectedRecourse float64             `json:"expected_recourse"`
	DayAheadCost     float64             `json:"day_ahead_cost"`
	TotalCost        float64             `json:"total_cost"`
	Cuts             int                 `json:"cuts"`
	ElapsedMS        float64             `json:"elapsed_ms"`
	Schedule         []GeneratorSchedule `json:"schedule"`
	Scenarios        []ScenarioOutcome   `json:"scenarios"`
	OutOfSample      *Evaluation         `json:"out_of_sample,omitempty"`
}

// Evaluation prices the final dispatch against another scenario set.
type Evaluation struct {
	ExpectedRecourse float64           `json:"expected_recourse"`
	Scenarios        []ScenarioOutcome `json:"scenarios"`
}

// ExtensiveScenario is the real-time adjustment of one scenario in the
// extensive form.
type ExtensiveScenario struct {
	ScenarioID     string             `json:"scenario_id"`
	Probability    float64            `json:"probability"`
	RecourseCost   float64            `json:"recourse_cost"`
	BalancingPrice float64            `json:"balancing_price"`
	Up             map[string]float64 `json:"up"`
	Down           map[string]float64 `json:"down"`
}

// ExtensiveReport is the serializable optimum of the extensive form.
type ExtensiveReport struct {
	DayAheadCost     float64             `json:"day_ahead_cost"`
	ExpectedRecourse float64             `json:"expected_recourse"`
	TotalCost        float64             `json:"total_cost"`
	DayAheadPrice    float64             `json:"day_ahead_price"`
	Schedule         []GeneratorSchedule `json:"schedule"`
	Scenarios        []ExtensiveScenario `json:"scenarios"`
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// NewReport summarizes r, produced for p.
func NewReport(p *model.Problem, r *benders.Result) Report {
	rep := Report{
		RunID:            r.RunID,
		Converged:        r.Converged,
		Iterations:       r.Iterations,
		Round:            r.Round,
		Theta:            finite(r.Theta),
		LowerBound:       finite(r.LowerBound),
		Gap:              finite(r.Gap),
		ExpectedRecourse: r.ExpectedRecourse,
		DayAheadCost:     r.DayAheadCost,
		TotalCost:        r.TotalCost,
		Cuts:             len(r.Cuts),
		ElapsedMS:        float64(r.Elapsed.Microseconds()) / 1000,
		Schedule:         schedule(p, r.Dispatch),
		Scenarios:        make([]ScenarioOutcome, len(r.Scenarios)),
	}
	for i, s := range r.Scenarios {
		sc := p.Scenarios[s.Scenario]
		rep.Scenarios[i] = ScenarioOutcome{
			ScenarioID:   sc.ID,
			Probability:  sc.Probability,
			RecourseCost: s.Cost,
			BalanceDual:  s.BalanceDual,
		}
	}
	return rep
}

func schedule(p *model.Problem, d model.Dispatch) []GeneratorSchedule {
	out := make([]GeneratorSchedule, len(p.Generators))
	for i, g := range p.Generators {
		out[i] = GeneratorSchedule{
			GeneratorID:  g.ID,
			Dispatch:     d[i],
			DayAheadCost: g.DayAheadCost * d[i],
		}
	}
	return out
}

// NewEvaluation summarizes an out-of-sample evaluation over the scenarios of p.
func NewEvaluation(p *model.Problem, results []benders.ScenarioResult, expected float64) *Evaluation {
	ev := &Evaluation{ExpectedRecourse: expected, Scenarios: make([]ScenarioOutcome, len(results))}
	for i, r := range results {
		sc := p.Scenarios[r.Scenario]
		ev.Scenarios[i] = ScenarioOutcome{
			ScenarioID:   sc.ID,
			Probability:  sc.Probability,
			RecourseCost: r.Cost,
			BalanceDual:  r.BalanceDual,
		}
	}
	return ev
}

// NewExtensiveReport summarizes sol, produced for p.
func NewExtensiveReport(p *model.Problem, sol *stochastic.Solution) ExtensiveReport {
	rep := ExtensiveReport{
		DayAheadCost:     sol.DayAheadCost,
		ExpectedRecourse: sol.ExpectedRecourse,
		TotalCost:        sol.TotalCost,
		DayAheadPrice:    sol.DayAheadPrice,
		Schedule:         schedule(p, sol.Dispatch),
		Scenarios:        make([]ExtensiveScenario, len(p.Scenarios)),
	}
	for s, sc := range p.Scenarios {
		es := ExtensiveScenario{
			ScenarioID:     sc.ID,
			Probability:    sc.Probability,
			RecourseCost:   sol.ScenarioCosts[s],
			BalancingPrice: sol.BalancingPrices[s],
			Up:             make(map[string]float64, len(p.Generators)),
			Down:           make(map[string]float64, len(p.Generators)),
		}
		for g, gen := range p.Generators {
			es.Up[gen.ID] = sol.Up[s][g]
			es.Down[gen.ID] = sol.Down[s][g]
		}
		rep.Scenarios[s] = es
	}
	return rep
}

// WriteJSON writes v to w in indented JSON format.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteCSV writes the day-ahead schedule of the report to w.
func WriteCSV(w io.Writer, rep Report) error {
	return WriteScheduleCSV(w, rep.Schedule)
}

// WriteScheduleCSV writes one row per generator to w.
func WriteScheduleCSV(w io.Writer, rows []GeneratorSchedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"generator_id", "dispatch", "day_ahead_cost"}); err != nil {
		return err
	}
	for _, s := range rows {
		rec := []string{
			s.GeneratorID,
			strconv.FormatFloat(s.Dispatch, 'f', -1, 64),
			strconv.FormatFloat(s.DayAheadCost, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
