package pipeline

import "encoding/json"

// Response is what callers of a run receive: either the trace of a
// completed run or a single error message.
type Response struct {
	Plan        Plan     `json:"plan"`
	Outputs     *Outputs `json:"outputs"`
	FinalResult string   `json:"final_result"`
	Error       string   `json:"error,omitempty"`
}

// Failed reports whether the response carries an error.
func (r Response) Failed() bool {
	return r.Error != ""
}

// MarshalJSON writes {"error": ...} for failures and
// {"plan", "outputs", "final_result"} otherwise.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}

	plan := r.Plan
	if plan == nil {
		plan = Plan{}
	}
	outputs := r.Outputs
	if outputs == nil {
		outputs = NewOutputs()
	}
	return json.Marshal(struct {
		Plan        Plan     `json:"plan"`
		Outputs     *Outputs `json:"outputs"`
		FinalResult string   `json:"final_result"`
	}{plan, outputs, r.FinalResult})
}

// ToResponse shapes an outcome for the caller. Partial outputs of a failed
// run are not included.
func ToResponse(o Outcome) Response {
	if o.State != StateCompleted {
		msg := "run failed"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		return Response{Error: msg}
	}

	outputs := o.Outputs
	if outputs == nil {
		outputs = NewOutputs()
	}
	plan := o.Plan
	if plan == nil {
		plan = Plan{}
	}
	return Response{
		Plan:        plan,
		Outputs:     outputs,
		FinalResult: o.FinalResult,
	}
}
