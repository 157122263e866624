package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"matrixkernel/internal/klog"
)

func traceCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a recorded trace file",
	}
	cmd.PersistentFlags().StringVarP(&path, "file", "f", "", "trace file written by kernel -trace (required)")
	cmd.MarkPersistentFlagRequired("file")

	cmd.AddCommand(traceShowCmd(&path))
	cmd.AddCommand(traceTimersCmd(&path))
	cmd.AddCommand(traceThreadsCmd(&path))
	return cmd
}

// loadEvents reads one JSON klog.TraceEvent per line from path, in
// the order cmd/kernel wrote them.
func loadEvents(path string) ([]klog.TraceEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	var events []klog.TraceEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev klog.TraceEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode trace line: %w", err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace file: %w", err)
	}
	return events, nil
}

func traceShowCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every recorded event in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadEvents(*path)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Tick", "Kind", "Thread", "Priority", "Timer", "Reschedule", "Detail"})
			for _, ev := range events {
				table.Append([]string{
					strconv.FormatUint(ev.Tick, 10),
					ev.Kind,
					threadColumn(ev),
					priorityColumn(ev),
					ev.TimerName,
					strconv.FormatBool(ev.Reschedule),
					ev.Detail,
				})
			}
			table.Render()
			return nil
		},
	}
}

func traceTimersCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "timers",
		Short: "Print every timer-fire event",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadEvents(*path)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Tick", "Timer", "Reschedule"})
			for _, ev := range events {
				if ev.Kind != klog.TraceTimer {
					continue
				}
				table.Append([]string{
					strconv.FormatUint(ev.Tick, 10),
					ev.TimerName,
					strconv.FormatBool(ev.Reschedule),
				})
			}
			table.Render()
			return nil
		},
	}
}

func traceThreadsCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "Print dispatch counts per thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadEvents(*path)
			if err != nil {
				return err
			}

			type stat struct {
				name     string
				priority int
				count    int
			}
			byID := map[uint32]*stat{}
			var order []uint32
			for _, ev := range events {
				if ev.Kind != klog.TraceDispatch {
					continue
				}
				s, ok := byID[ev.ThreadID]
				if !ok {
					s = &stat{name: ev.ThreadName, priority: ev.Priority}
					byID[ev.ThreadID] = s
					order = append(order, ev.ThreadID)
				}
				s.count++
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Thread ID", "Name", "Priority", "Dispatches"})
			for _, id := range order {
				s := byID[id]
				table.Append([]string{
					strconv.FormatUint(uint64(id), 10),
					s.name,
					strconv.Itoa(s.priority),
					strconv.Itoa(s.count),
				})
			}
			table.Render()
			return nil
		},
	}
}

func threadColumn(ev klog.TraceEvent) string {
	if ev.Kind != klog.TraceDispatch {
		return ""
	}
	return ev.ThreadName
}

func priorityColumn(ev klog.TraceEvent) string {
	if ev.Kind != klog.TraceDispatch {
		return ""
	}
	return strconv.Itoa(ev.Priority)
}
