package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/erikjearl/SEPIA-Environments/runner"
	"github.com/erikjearl/SEPIA-Environments/scenario"
	"github.com/erikjearl/SEPIA-Environments/search"
)

type searchDone struct {
	out *runner.Outcome
	res *search.Result
	err error
}

// searchJob runs one search in the background for the progress view.
type searchJob struct {
	cancel   context.CancelFunc
	updates  chan search.Progress
	results  chan searchDone
	finished chan struct{}
	done     searchDone
}

func startSearch(ctx context.Context, sc scenario.Scenario, opts runner.Options) *searchJob {
	ctx, cancel := context.WithCancel(ctx)
	j := &searchJob{
		cancel:   cancel,
		updates:  make(chan search.Progress, 16),
		results:  make(chan searchDone, 1),
		finished: make(chan struct{}),
	}
	opts.OnProgress = func(p search.Progress) {
		// Drop samples rather than stall the search behind the UI.
		select {
		case j.updates <- p:
		default:
		}
	}
	go func() {
		o, err := runner.Run(ctx, sc, opts)
		close(j.updates)
		j.done = searchDone{out: o, err: err}
		if o != nil {
			j.done.res = o.Result
		}
		close(j.finished)
		j.results <- j.done
	}()
	return j
}

// wait cancels the search if it is still running and returns its result,
// whether or not anything read from results.
func (j *searchJob) wait() searchDone {
	j.cancel()
	<-j.finished
	return j.done
}

type model struct {
	scenario string
	runID    string
	goalGold int
	goalWood int

	startTime time.Time
	last      search.Progress
	samples   int
	done      *searchDone

	updates <-chan search.Progress
	results <-chan searchDone
	cancel  func()
}

func initialModel(scenario, runID string, goalGold, goalWood int, updates <-chan search.Progress, results <-chan searchDone, cancel func()) model {
	return model{
		scenario:  scenario,
		runID:     runID,
		goalGold:  goalGold,
		goalWood:  goalWood,
		startTime: time.Now(),
		updates:   updates,
		results:   results,
		cancel:    cancel,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForProgress(updates <-chan search.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-updates
		if !ok {
			return nil
		}
		return p
	}
}

func waitForResult(results <-chan searchDone) tea.Cmd {
	return func() tea.Msg {
		return <-results
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForProgress(m.updates), waitForResult(m.results), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			// The search stops at its next context check and reports back.
			m.cancel()
		}
	case TickMsg:
		if m.done != nil {
			return m, nil
		}
		return m, tickCmd()
	case search.Progress:
		m.last = msg
		m.samples++
		return m, waitForProgress(m.updates)
	case searchDone:
		m.done = &msg
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	elapsed := time.Since(m.startTime)
	if m.done != nil && m.done.res != nil {
		elapsed = m.done.res.Elapsed
	}

	rate := 0.0
	if elapsed.Seconds() >= 1 {
		rate = float64(m.last.Expanded) / elapsed.Seconds()
	}

	fmt.Fprintf(&b, "Scenario:   %s (run %s)\n", m.scenario, m.runID)
	fmt.Fprintf(&b, "Goal:       %s gold, %s wood\n", humanize.Comma(int64(m.goalGold)), humanize.Comma(int64(m.goalWood)))
	fmt.Fprintf(&b, "Duration:   %s\n", elapsed.Round(100*time.Millisecond))
	fmt.Fprintf(&b, "Expanded:   %s (%s/s)\n", humanize.Comma(int64(m.last.Expanded)), humanize.CommafWithDigits(rate, 0))
	fmt.Fprintf(&b, "Generated:  %s\n", humanize.Comma(int64(m.last.Generated)))
	fmt.Fprintf(&b, "Duplicates: %s\n", humanize.Comma(int64(m.last.Duplicates)))
	fmt.Fprintf(&b, "Frontier:   %s\n", humanize.Comma(int64(m.last.Frontier)))
	fmt.Fprintf(&b, "Best:       gold %s  wood %s  workers %d  f=%.1f\n\n",
		humanize.Comma(int64(m.last.BestGold)), humanize.Comma(int64(m.last.BestWood)),
		m.last.BestWorkers, m.last.BestPriority)

	switch {
	case m.done == nil:
		b.WriteString("Searching... press q to stop.\n")
	case m.done.err != nil:
		fmt.Fprintf(&b, "Stopped: %v\n", m.done.err)
	default:
		fmt.Fprintf(&b, "Found a plan: %d steps, cost %.2f\n", len(m.done.res.Plan), m.done.res.Cost)
	}
	return b.String()
}
