package explorer

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/zeu5/studybreak-rl/types"
)

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Runs the main interactive loop until the user quits or the input ends
func (e *Explorer) Interact(in io.Reader, out io.Writer) {
	fmt.Fprintf(out, "%s", e.header())
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s", e.prompt())

		optionS, err := readLine(reader)
		if err == io.EOF {
			return
		} else if err != nil {
			fmt.Fprintln(out, "Invalid input! Try again")
			continue
		}
		option, err := strconv.Atoi(optionS)
		if err != nil {
			fmt.Fprintln(out, "Invalid input! Try again")
			continue
		}
		fmt.Fprintln(out, "------------------------------------")
		switch option {
		case 1:
			fmt.Fprintf(out, "%s", e.getInitialStates())
		case 2:
			fmt.Fprintf(out, "Enter the state key: ")
			stateK, err := readLine(reader)
			if err != nil {
				fmt.Fprintln(out, "Invalid input! Try again")
				continue
			}
			fmt.Fprintf(out, "%s", e.getQValues(stateK))
		case 3:
			fmt.Fprintf(out, "Enter the state key: ")
			stateK, err := readLine(reader)
			if err != nil {
				fmt.Fprintln(out, "Invalid input! Try again")
				continue
			}
			fmt.Fprintf(out, "%s", e.getFullState(stateK))
		case 4:
			fmt.Fprintf(out, "Enter trace number (1-%d): ", len(e.Traces))
			traceNoS, err := readLine(reader)
			if err != nil {
				fmt.Fprintln(out, "Invalid input! Try again")
				continue
			}
			traceNo, err := strconv.Atoi(traceNoS)
			if err != nil {
				fmt.Fprintln(out, "Invalid input! Not a number. Try again")
				continue
			}
			if traceNo < 1 || traceNo > len(e.Traces) {
				fmt.Fprintf(out, "Invalid input! Should be between (1-%d). Try again\n", len(e.Traces))
				continue
			}
			e.interactTrace(traceNo-1, reader, out)
		case 5:
			fmt.Fprintf(out, "%s\n", e.QTable.Printable(nil))
		case 6:
			fmt.Fprintln(out, "Quitting! Thank you")
			return
		default:
			fmt.Fprintln(out, "Wrong choice! Try again!")
		}
	}
}

func (e *Explorer) getFullState(stateKey string) string {
	state, err := types.ParseStateHash(stateKey)
	if err != nil {
		return "No such state\n"
	}
	return fmt.Sprintf("State Key: %s\nState: %s\nVisits: %d\n", stateKey, describeState(state), e.Visits[state])
}

// getQValues lists the values of the state, the greedy action is highlighted
func (e *Explorer) getQValues(stateKey string) string {
	state, err := types.ParseStateHash(stateKey)
	if err != nil {
		return "No such state in the q table\n"
	}
	best, _ := e.QTable.Max(state)
	out := "Q values are:\n"
	for _, a := range types.AllActions {
		line := fmt.Sprintf("%s: %f", a.Info().Name, e.QTable.Get(state, a))
		if a == best {
			out += fmt.Sprintf("%s\n", e.au.Bold(e.au.Green(line+" (best)")))
		} else {
			out += line + "\n"
		}
	}
	return out
}

func (e *Explorer) getInitialStates() string {
	initialStates := make(map[string]int)
	for _, t := range e.Traces {
		s, _, _, _, ok := t.Get(0)
		if !ok {
			continue
		}
		initialStates[s.Hash()] += 1
	}
	keys := make([]string, 0, len(initialStates))
	for k := range initialStates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "Initial States are:\n"
	for _, k := range keys {
		out += fmt.Sprintf("%s: %d\n", k, initialStates[k])
	}
	return out
}

func (e *Explorer) header() string {
	return fmt.Sprintf(`
Welcome to the q table explorer!
Loaded %d traces visiting %d states
	`, len(e.Traces), len(e.Visits))
}

func (e *Explorer) prompt() string {
	return `
------------------------------------
Select one of the following options:
1. Show initial state
2. Show QValues
3. Show full state
4. Explore a trace
5. Show q table
6. Quit
Enter your choice: `
}

func (e *Explorer) tracePrompt() string {
	return `
---------------------------------------------
Step(s) QValues(d) Prev(p) Last(l) Quit(q): `
}

func (e *Explorer) interactTrace(traceNo int, reader *bufio.Reader, out io.Writer) {
	stepCount := 0
	trace := e.Traces[traceNo]
	if trace.Len() == 0 {
		fmt.Fprintln(out, "Empty trace!")
		return
	}
	fmt.Fprintln(out, "---------------------------------------------")
	for {
		step, _ := describeStep(trace, stepCount)
		fmt.Fprintf(out, "%s", step)
		fmt.Fprintf(out, "%s", e.tracePrompt())
		option, err := readLine(reader)
		if err == io.EOF {
			return
		} else if err != nil {
			fmt.Fprintln(out, "Invalid input! Try again")
			continue
		}
		fmt.Fprintln(out, "---------------------------------------------")
		switch option {
		case "s":
			if stepCount == trace.Len()-1 {
				fmt.Fprintln(out, "No more steps!")
				continue
			}
			stepCount += 1
		case "d":
			s, _, _, _, _ := trace.Get(stepCount)
			fmt.Fprintf(out, "%s", e.getQValues(s.Hash()))
		case "p":
			if stepCount == 0 {
				fmt.Fprintln(out, "No more steps!")
				continue
			}
			stepCount -= 1
		case "l":
			stepCount = trace.Len() - 1
		case "q":
			return
		default:
			fmt.Fprintln(out, "Invalid option! Try again.")
		}
	}
}
