package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/c360studio/orc/internal/model"
)

// RenderState writes a human-readable summary of state to w, in the
// register of the teacher's /status command output: a short header
// block plus a next-steps hint.
func RenderState(w io.Writer, state *model.WorkflowState) {
	fmt.Fprintf(w, "session:   %s\n", state.SessionID)
	fmt.Fprintf(w, "profile:   %s\n", state.Profile)
	fmt.Fprintf(w, "phase:     %s\n", state.Phase)
	if state.Stage != model.StageNone {
		fmt.Fprintf(w, "stage:     %s\n", state.Stage)
	}
	fmt.Fprintf(w, "status:    %s\n", state.Status)
	fmt.Fprintf(w, "iteration: %d\n", state.CurrentIteration)

	if state.PendingApproval {
		fmt.Fprintln(w, "\nAwaiting manual approval. Run `orc approve`, `orc reject`, or `orc cancel`.")
	}
	if state.LastError != "" {
		fmt.Fprintf(w, "\nlast error: %s\nRun `orc approve` to retry, or `orc cancel` to abandon.\n", state.LastError)
	}
	for _, msg := range state.Messages {
		fmt.Fprintln(w, "\n"+msg)
	}
}

// RenderStateJSON writes state as indented JSON, for scripted callers.
func RenderStateJSON(w io.Writer, state *model.WorkflowState) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

// RenderSessionList writes one session id per line.
func RenderSessionList(w io.Writer, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	fmt.Fprintln(w, strings.Join(ids, "\n"))
}
