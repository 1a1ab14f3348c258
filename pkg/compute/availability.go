package compute

import (
	"github.com/obsidianstack/repairstack/pkg/types"
)

// Evaluation is the steady-state picture of one configuration.
type Evaluation struct {
	Parameters   types.Parameters `json:"parameters"`
	Distribution Distribution     `json:"distribution"`

	// Availability is the probability that at least m components are up.
	Availability float64 `json:"availability"`

	// ExpectedFailed is the mean number of failed components.
	ExpectedFailed float64 `json:"expected_failed"`

	// ExpectedBusyRepair is the mean number of repair units at work,
	// sum of min(i, k)·pi[i].
	ExpectedBusyRepair float64 `json:"expected_busy_repair"`
}

// Evaluate solves the chain for p and derives its steady-state figures.
func Evaluate(p types.Parameters) (Evaluation, error) {
	r, err := ComputeRates(p)
	if err != nil {
		return Evaluation{}, err
	}
	pi, err := Solve(r)
	if err != nil {
		return Evaluation{}, err
	}

	var busy float64
	for i, v := range pi {
		busy += float64(min(i, p.RepairCrew)) * v
	}

	return Evaluation{
		Parameters:         p,
		Distribution:       pi,
		Availability:       pi.Operational(p.MaxFailed()),
		ExpectedFailed:     pi.Mean(),
		ExpectedBusyRepair: busy,
	}, nil
}

// Availability returns the steady-state probability that the system described
// by p is operational.
func Availability(p types.Parameters) (float64, error) {
	ev, err := Evaluate(p)
	if err != nil {
		return 0, err
	}
	return ev.Availability, nil
}

// clone returns a copy of ev that shares no memory with it.
func (ev Evaluation) clone() Evaluation {
	ev.Distribution = append(Distribution(nil), ev.Distribution...)
	return ev
}
