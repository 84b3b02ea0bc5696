package explorer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/zeu5/studybreak-rl/policies"
	"github.com/zeu5/studybreak-rl/types"
)

type Explorer struct {
	PolicyFile string
	TracesFile string

	QTable *policies.QTable
	Traces []*types.Trace

	// number of times each state was visited in the traces
	Visits map[types.State]int

	au aurora.Aurora
}

// Create an explorer of q tables and trace
func NewExplorer(policyFile string, tracesFile string, colors bool) (*Explorer, error) {
	e := &Explorer{
		PolicyFile: policyFile,
		TracesFile: tracesFile,
		QTable:     policies.NewQTable(),
		Traces:     make([]*types.Trace, 0),
		Visits:     make(map[types.State]int),
		au:         aurora.NewAurora(colors),
	}

	err := e.QTable.Read(policyFile)
	if err != nil {
		return nil, err
	}
	e.Traces, err = readTraces(e.TracesFile)
	if err != nil {
		return nil, err
	}

	for _, t := range e.Traces {
		for i := 0; i < t.Len(); i++ {
			s, _, _, _, _ := t.Get(i)
			e.Visits[s] += 1
		}
	}

	return e, nil
}

func readTraces(path string) ([]*types.Trace, error) {
	traces := make([]*types.Trace, 0)
	file, err := os.Open(path)
	if err != nil {
		return traces, fmt.Errorf("error reading file: %s", err)
	}
	defer file.Close()

	if strings.HasSuffix(path, ".json") {
		t := types.NewTrace()
		data, err := io.ReadAll(file)
		if err != nil {
			return traces, fmt.Errorf("error reading file: %s", err)
		}
		err = json.Unmarshal(data, t)
		if err != nil {
			return traces, fmt.Errorf("error parsing file: %s", err)
		}
		traces = append(traces, t)
		return traces, nil
	}

	scanner := bufio.NewScanner(file)
	maxTraceSize := 5 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxTraceSize)
	for scanner.Scan() {
		bs := scanner.Bytes()
		if len(bs) == 0 {
			continue
		}
		t := types.NewTrace()
		if err := json.Unmarshal(bs, t); err != nil {
			return traces, fmt.Errorf("error reading file contents: %s", err)
		}
		traces = append(traces, t)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return traces, errors.New("error trace too big")
		}
		return traces, fmt.Errorf("failed to read traces: %s", err)
	}
	return traces, nil
}

// Example invocation - ./studybreak explore results/policy.json results/traces.jsonl
func ExploreCommand() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:  "explore [policy_output] [trace_output]",
		Long: "Explore the choices of a q-table and the traces",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := NewExplorer(args[0], args[1], !noColor)
			if err != nil {
				return err
			}

			exp.Interact(os.Stdin, os.Stdout)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}
