package replay

import (
	"fmt"

	"github.com/octoreflex/proctriage/internal/decision"
	"github.com/octoreflex/proctriage/internal/evidence"
	"github.com/octoreflex/proctriage/internal/inference"
	"github.com/octoreflex/proctriage/internal/model"
)

// InferenceResult is the outcome of replaying one process through the
// inference/decision pipeline.
type InferenceResult struct {
	PID               int
	Comm              string
	Cmd               []string
	State             string
	Posterior         model.ClassScores
	Classification    string
	RecommendedAction model.ActionKind
	ExpectedLoss      float64
	EvidenceTerms     []string
}

// Inference replays every process in a snapshot through
// ComputePosterior + Baseline. It is a pure function of its three
// arguments: identical (snapshot, priors, policy) always produces
// identical results, down to bit-identical float64 values, since
// neither step consults wall-clock time, randomness, or any state
// outside its parameters (spec §4.8, property 2).
func Inference(snapshot Snapshot, priors model.Priors, policy model.Policy) ([]InferenceResult, error) {
	classSlice := model.AllClasses()
	classes := classSlice[:]
	feasible := model.AllActions()

	results := make([]InferenceResult, 0, len(snapshot.Processes))
	for _, proc := range snapshot.Processes {
		deep := snapshot.DeepSignals[proc.PID]
		ev := evidence.Build(proc, &evidence.DeepSignal{NetActive: deep.NetActive, IOActive: deep.IOActive})

		posterior, err := inference.ComputePosterior(priors, ev)
		if err != nil {
			return nil, fmt.Errorf("inference error for pid %d: %w", proc.PID, err)
		}

		action, _, err := decision.Baseline(posterior.Posterior, policy.Loss, classes, feasible)
		if err != nil {
			return nil, fmt.Errorf("decision error for pid %d: %w", proc.PID, err)
		}

		terms := make([]string, 0, len(posterior.Terms))
		for _, t := range posterior.Terms {
			terms = append(terms, t.Feature)
		}

		expectedLoss := expectedLossOf(posterior.Posterior, policy.Loss, classes, action)

		results = append(results, InferenceResult{
			PID:               proc.PID,
			Comm:              proc.Comm,
			Cmd:               proc.Cmd,
			State:             proc.State.String(),
			Posterior:         posterior.Posterior.Scores(),
			Classification:    posterior.Posterior.Scores().Argmax().String(),
			RecommendedAction: action,
			ExpectedLoss:      expectedLoss,
			EvidenceTerms:     terms,
		})
	}
	return results, nil
}

func expectedLossOf(posterior model.BeliefState, loss *model.LossMatrix, classes []model.ClassKind, action model.ActionKind) float64 {
	scores := posterior.Scores()
	var e float64
	for _, c := range classes {
		l, ok := loss.Get(c, action)
		if !ok {
			continue
		}
		e += scores.Get(c) * l
	}
	return e
}
